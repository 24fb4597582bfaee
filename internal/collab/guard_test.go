package collab

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
)

func rect(id, color, by string, ts int64) model.Object {
	return model.Object{
		ObjectID:       id,
		Type:           "rect",
		Props:          json.RawMessage(`{"color":"` + color + `"}`),
		CreatedBy:      by,
		LastModifiedBy: by,
		LastModified:   ts,
	}
}

func TestLoopGuardVerdicts(t *testing.T) {
	tests := []struct {
		name    string
		issued  int64
		remote  model.Object
		want    Verdict
		remains bool
	}{
		{"no pending write", 0, rect("other", "red", "bob", 5), Apply, true},
		{"own value echoed", 0, rect("r1", "red", "alice", 5), Echo, false},
		{"own value echoed after confirm", 100, rect("r1", "red", "alice", 100), Echo, false},
		{"earlier own write", 0, rect("r1", "blue", "alice", 5), StaleEcho, true},
		{"peer value not newer than issued write", 100, rect("r1", "blue", "bob", 90), StaleEcho, true},
		{"peer value before issue", 0, rect("r1", "blue", "bob", 90), Conflict, true},
		{"peer value newer than issued write", 100, rect("r1", "blue", "bob", 110), Conflict, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := NewLoopGuard(time.Minute, newMock())
			defer g.Stop()

			token := g.Mark(rect("r1", "red", "alice", 0))
			if tc.issued > 0 {
				g.Confirm("r1", token, tc.issued)
			}

			assert.Equal(t, tc.want, g.Observe(tc.remote))
			_, ok := g.Pending("r1")
			assert.Equal(t, tc.remains, ok)
		})
	}
}

func TestLoopGuardGraceEviction(t *testing.T) {
	mock := newMock()
	g := NewLoopGuard(600*time.Millisecond, mock)
	defer g.Stop()

	g.Mark(rect("r1", "red", "alice", 0))
	mock.Add(500 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, g.Len())

	mock.Add(100 * time.Millisecond)
	eventually(t, func() bool { return g.Len() == 0 }, "entry evicted after grace")

	// once evicted, the echo is treated as an ordinary remote update
	assert.Equal(t, Apply, g.Observe(rect("r1", "red", "alice", 5)))
}

func TestLoopGuardConfirmRestartsGrace(t *testing.T) {
	mock := newMock()
	g := NewLoopGuard(600*time.Millisecond, mock)
	defer g.Stop()

	token := g.Mark(rect("r1", "red", "alice", 0))
	mock.Add(500 * time.Millisecond)
	g.Confirm("r1", token, 42)
	mock.Add(500 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	w, ok := g.Pending("r1")
	assert.Equal(t, true, ok)
	assert.Equal(t, int64(42), w.IssuedAt)

	mock.Add(100 * time.Millisecond)
	eventually(t, func() bool { return g.Len() == 0 }, "entry evicted after restarted grace")
}

func TestLoopGuardRemarkKeepsIssuedTimestamp(t *testing.T) {
	g := NewLoopGuard(time.Minute, newMock())
	defer g.Stop()

	first := g.Mark(rect("r1", "red", "alice", 0))
	g.Confirm("r1", first, 50)
	second := g.Mark(rect("r1", "green", "alice", 0))

	// confirming an older token still records the timestamp
	g.Confirm("r1", first, 60)
	w, _ := g.Pending("r1")
	assert.Equal(t, int64(60), w.IssuedAt)
	assert.Equal(t, `{"color":"green"}`, string(w.LocalValue.Props))

	assert.Equal(t, StaleEcho, g.Observe(rect("r1", "blue", "bob", 55)))
	g.Confirm("r1", second, 70)
	assert.Equal(t, Echo, g.Observe(rect("r1", "green", "alice", 70)))
}

func TestLoopGuardForget(t *testing.T) {
	g := NewLoopGuard(time.Minute, newMock())
	defer g.Stop()

	g.Mark(rect("r1", "red", "alice", 0))
	g.Forget("r1")
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, Apply, g.Observe(rect("r1", "blue", "bob", 5)))
}
