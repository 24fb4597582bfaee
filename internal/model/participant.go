package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Cursor is a pointer position in canvas coordinates.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Participant is the ephemeral presence record of one connected session.
type Participant struct {
	ParticipantID string  `json:"participantId"`
	DisplayName   string  `json:"displayName"`
	Color         string  `json:"color"`
	Cursor        *Cursor `json:"cursor"`
	Online        bool    `json:"online"`
	LastHeartbeat int64   `json:"lastHeartbeat"`
}

// DecodeParticipant parses a presence record.
func DecodeParticipant(data []byte) (Participant, error) {
	var p Participant
	if err := json.Unmarshal(data, &p); err != nil {
		return Participant{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if p.ParticipantID == "" {
		return Participant{}, fmt.Errorf("%w: missing participantId", ErrMalformedRecord)
	}
	return p, nil
}

// DecodeCursor parses a cursor record.
func DecodeCursor(data []byte) (Cursor, error) {
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return c, nil
}

// DragState is written while a drag gesture is active and cleared when it ends.
type DragState struct {
	ObjectID            string  `json:"objectId"`
	X                   float64 `json:"x"`
	Y                   float64 `json:"y"`
	OriginParticipantID string  `json:"originParticipantId"`
	LastUpdate          int64   `json:"lastUpdate"`
}

// DecodeDragState parses a drag record.
func DecodeDragState(data []byte) (DragState, error) {
	var d DragState
	if err := json.Unmarshal(data, &d); err != nil {
		return DragState{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if d.ObjectID == "" || d.OriginParticipantID == "" {
		return DragState{}, fmt.Errorf("%w: incomplete drag state", ErrMalformedRecord)
	}
	return d, nil
}

// PendingWrite is a locally originated mutation not yet confirmed by the store.
// It is never persisted remotely.
type PendingWrite struct {
	ObjectID    string
	LocalValue  Object
	SubmittedAt time.Time
	// IssuedAt is the newest server timestamp assigned to a write of this
	// object by this client, 0 until one is confirmed.
	IssuedAt int64
}
