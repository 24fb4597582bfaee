package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedRecord is returned when a remote record lacks required fields.
var ErrMalformedRecord = errors.New("malformed record")

// Object is a durable document element (shape). LastModified is assigned by
// the store clock, never by the client.
type Object struct {
	ObjectID       string          `json:"objectId"`
	Type           string          `json:"type"`
	Props          json.RawMessage `json:"props,omitempty"`
	CreatedBy      string          `json:"createdBy"`
	LastModifiedBy string          `json:"lastModifiedBy"`
	LastModified   int64           `json:"lastModified"`
}

// DecodeObject parses and validates an Object record.
func DecodeObject(data []byte) (Object, error) {
	var o Object
	if err := json.Unmarshal(data, &o); err != nil {
		return Object{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := o.Validate(); err != nil {
		return Object{}, err
	}
	return o, nil
}

// Validate checks the fields every stored Object must carry.
func (o Object) Validate() error {
	switch {
	case o.ObjectID == "":
		return fmt.Errorf("%w: missing objectId", ErrMalformedRecord)
	case o.Type == "":
		return fmt.Errorf("%w: object %s missing type", ErrMalformedRecord, o.ObjectID)
	case o.LastModifiedBy == "":
		return fmt.Errorf("%w: object %s missing lastModifiedBy", ErrMalformedRecord, o.ObjectID)
	case o.LastModified <= 0:
		return fmt.Errorf("%w: object %s missing lastModified", ErrMalformedRecord, o.ObjectID)
	}
	return nil
}

// SameContent reports whether two objects carry the same type and props,
// ignoring authorship and timestamps.
func (o Object) SameContent(other Object) bool {
	if o.ObjectID != other.ObjectID || o.Type != other.Type {
		return false
	}
	return jsonEqual(o.Props, other.Props)
}

// Clone returns a copy that does not share the props buffer.
func (o Object) Clone() Object {
	c := o
	if o.Props != nil {
		c.Props = append(json.RawMessage(nil), o.Props...)
	}
	return c
}

func jsonEqual(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	na, errA := canonicalJSON(a)
	nb, errB := canonicalJSON(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(na, nb)
}

// canonicalJSON re-encodes data so that key order and whitespace do not
// affect comparison. Empty input and JSON null compare equal.
func canonicalJSON(data json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("null"), nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
