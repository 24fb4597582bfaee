package store

import (
	"encoding/json"
	"testing"
	"time"
)

func recvChange(t *testing.T, sub *Subscription) Change {
	t.Helper()
	select {
	case c, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return Change{}
}

func expectQuiet(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case c, ok := <-sub.C:
		if ok {
			t.Fatalf("unexpected change %+v", c)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func field(t *testing.T, value json.RawMessage, name string) any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(value, &m); err != nil {
		t.Fatalf("decode %s: %v", value, err)
	}
	return m[name]
}
