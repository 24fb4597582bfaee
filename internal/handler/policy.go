package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

// Policy decides what a participant may do to the records of its room.
//
// Anyone in the room may write and delete objects and drag states, but a drag
// state must name its writer as origin and an object must name its writer as
// lastModifiedBy. Presence and cursor records may only be written by their
// owner; a peer may delete them once the owner's heartbeat is stale.
type Policy struct {
	backend      store.Backend
	staleTimeout time.Duration
}

func NewPolicy(backend store.Backend, staleTimeout time.Duration) *Policy {
	return &Policy{backend: backend, staleTimeout: staleTimeout}
}

func denied(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrPermissionDenied, fmt.Sprintf(format, args...))
}

// record parses path and checks that it belongs to roomID.
func (p *Policy) record(roomID, path string) (store.Path, error) {
	parsed, err := store.ParsePath(path)
	if err != nil {
		return store.Path{}, err
	}
	if parsed.Room != roomID {
		return store.Path{}, denied("path %s is outside room %s", path, roomID)
	}
	return parsed, nil
}

// CanRead allows gets on any record of the room.
func (p *Policy) CanRead(roomID, path string) error {
	_, err := p.record(roomID, path)
	return err
}

// CanSubscribe allows the room prefix and its collections.
func (p *Policy) CanSubscribe(roomID, prefix string) error {
	if err := store.ValidatePrefix(prefix); err != nil {
		return err
	}
	roomPrefix := store.RoomPrefix(roomID)
	if len(prefix) < len(roomPrefix) || prefix[:len(roomPrefix)] != roomPrefix {
		return denied("prefix %s is outside room %s", prefix, roomID)
	}
	return nil
}

// CanPut checks the path and the record's self-declared authorship.
func (p *Policy) CanPut(roomID, participantID, path string, value json.RawMessage) error {
	parsed, err := p.record(roomID, path)
	if err != nil {
		return err
	}

	switch parsed.Kind {
	case model.KindPresence:
		if parsed.ID != participantID {
			return denied("presence of %s", parsed.ID)
		}
		var rec struct {
			ParticipantID string `json:"participantId"`
		}
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidValue, err)
		}
		if rec.ParticipantID != participantID {
			return denied("presence record names %q", rec.ParticipantID)
		}
	case model.KindCursors:
		if parsed.ID != participantID {
			return denied("cursor of %s", parsed.ID)
		}
	case model.KindObjects:
		var obj model.Object
		if err := json.Unmarshal(value, &obj); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidValue, err)
		}
		if obj.ObjectID != parsed.ID || obj.Type == "" {
			return fmt.Errorf("%w: object %s", store.ErrInvalidValue, parsed.ID)
		}
		if obj.LastModifiedBy != participantID {
			return denied("object %s modified by %q", parsed.ID, obj.LastModifiedBy)
		}
	case model.KindDragging:
		var d model.DragState
		if err := json.Unmarshal(value, &d); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidValue, err)
		}
		if d.ObjectID != parsed.ID {
			return fmt.Errorf("%w: drag of %s", store.ErrInvalidValue, parsed.ID)
		}
		if d.OriginParticipantID != participantID {
			return denied("drag of %s by %q", parsed.ID, d.OriginParticipantID)
		}
	}
	return nil
}

// CanDelete lets peers clear another participant's presence or cursor only
// after its heartbeat went stale by the store clock.
func (p *Policy) CanDelete(ctx context.Context, roomID, participantID, path string) error {
	parsed, err := p.record(roomID, path)
	if err != nil {
		return err
	}
	if parsed.Kind != model.KindPresence && parsed.Kind != model.KindCursors {
		return nil
	}
	if parsed.ID == participantID {
		return nil
	}

	stale, err := p.stale(ctx, roomID, parsed.ID)
	if err != nil {
		return err
	}
	if !stale {
		return denied("%s of live participant %s", parsed.Kind, parsed.ID)
	}
	return nil
}

func (p *Policy) stale(ctx context.Context, roomID, participantID string) (bool, error) {
	raw, err := p.backend.Get(ctx, store.PresencePath(roomID, participantID))
	if err != nil {
		return false, err
	}
	if raw == nil {
		return true, nil
	}
	rec, err := model.DecodeParticipant(raw)
	if err != nil {
		return true, nil
	}
	now, err := p.backend.Now(ctx)
	if err != nil {
		return false, err
	}
	return now-rec.LastHeartbeat >= p.staleTimeout.Milliseconds(), nil
}

// CanRegister allows on-disconnect actions on the participant's own presence
// and cursor and on drag states it originates.
func (p *Policy) CanRegister(roomID, participantID, path string, action store.DisconnectAction) error {
	parsed, err := p.record(roomID, path)
	if err != nil {
		return err
	}
	switch parsed.Kind {
	case model.KindPresence, model.KindCursors:
		if parsed.ID != participantID {
			return denied("on-disconnect for %s of %s", parsed.Kind, parsed.ID)
		}
		if action.Op == store.ActionSet {
			return p.CanPut(roomID, participantID, path, action.Value)
		}
		return nil
	case model.KindDragging:
		if action.Op != store.ActionDelete {
			return denied("on-disconnect set on drag %s", parsed.ID)
		}
		return nil
	}
	return denied("on-disconnect for %s", parsed.Kind)
}
