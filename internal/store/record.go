package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Stamp sets field to ts on a JSON object value.
func Stamp(value json.RawMessage, field string, ts int64) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(value, &obj); err != nil || obj == nil {
		return nil, ErrInvalidValue
	}
	obj[field] = json.RawMessage(strconv.FormatInt(ts, 10))
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("store: re-encode stamped value: %w", err)
	}
	return out, nil
}

func checkValue(value json.RawMessage) error {
	if len(value) == 0 || !json.Valid(value) {
		return ErrInvalidValue
	}
	return nil
}

func clone(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}
