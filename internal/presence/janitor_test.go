package presence

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-playground/assert/v2"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

type staticRooms []string

func (r staticRooms) ActiveRooms() []string { return r }

func setup(t *testing.T) (*clock.Mock, *store.MemoryBackend) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_700_000_000_000))
	backend := store.NewMemoryBackend(store.WithMemoryClock(mock), store.WithSweepInterval(time.Hour))
	t.Cleanup(func() { backend.Close() })
	return mock, backend
}

func join(t *testing.T, backend store.Backend, id string) {
	t.Helper()
	ctx := context.Background()
	body, _ := json.Marshal(model.Participant{ParticipantID: id, DisplayName: id, Online: true})
	if _, err := backend.Put(ctx, store.PresencePath("r1", id), body,
		store.WithServerTimestamp(model.FieldLastHeartbeat)); err != nil {
		t.Fatal(err)
	}
	if _, err := backend.Put(ctx, store.CursorPath("r1", id), json.RawMessage(`{"x":1,"y":2}`)); err != nil {
		t.Fatal(err)
	}
}

func drag(t *testing.T, backend store.Backend, objectID, by string) {
	t.Helper()
	body, _ := json.Marshal(model.DragState{ObjectID: objectID, OriginParticipantID: by})
	if _, err := backend.Put(context.Background(), store.DraggingPath("r1", objectID), body,
		store.WithServerTimestamp(model.FieldLastUpdate)); err != nil {
		t.Fatal(err)
	}
}

func exists(t *testing.T, backend store.Backend, path string) bool {
	t.Helper()
	v, err := backend.Get(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	return v != nil
}

func TestSweepRoomRemovesStaleParticipants(t *testing.T) {
	mock, backend := setup(t)
	j := NewJanitor(backend, staticRooms{"r1"}, 37500*time.Millisecond, 5*time.Second, time.Second, mock, nil)

	join(t, backend, "alice")
	mock.Add(30 * time.Second)
	join(t, backend, "bob")
	mock.Add(10 * time.Second)

	report, err := j.SweepRoom(context.Background(), "r1")
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, report.Participants)
	assert.Equal(t, 1, report.Cursors)

	assert.Equal(t, false, exists(t, backend, store.PresencePath("r1", "alice")))
	assert.Equal(t, false, exists(t, backend, store.CursorPath("r1", "alice")))
	assert.Equal(t, true, exists(t, backend, store.PresencePath("r1", "bob")))
	assert.Equal(t, true, exists(t, backend, store.CursorPath("r1", "bob")))
}

func TestSweepRoomRemovesMalformedAndOrphans(t *testing.T) {
	mock, backend := setup(t)
	j := NewJanitor(backend, staticRooms{"r1"}, time.Minute, 5*time.Second, time.Second, mock, nil)
	ctx := context.Background()

	backend.Put(ctx, store.PresencePath("r1", "ghost"), json.RawMessage(`{"displayName":"x"}`))
	backend.Put(ctx, store.CursorPath("r1", "carol"), json.RawMessage(`{"x":0,"y":0}`))

	report, err := j.SweepRoom(ctx, "r1")
	assert.Equal(t, nil, err)
	assert.Equal(t, Report{Participants: 1, Cursors: 1}, report)
}

func TestSweepRoomRemovesAbandonedDrags(t *testing.T) {
	mock, backend := setup(t)
	j := NewJanitor(backend, staticRooms{"r1"}, time.Minute, 5*time.Second, time.Second, mock, nil)

	drag(t, backend, "o1", "alice")
	mock.Add(4 * time.Second)
	drag(t, backend, "o2", "bob")
	mock.Add(2 * time.Second)

	report, err := j.SweepRoom(context.Background(), "r1")
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, report.Drags)
	assert.Equal(t, false, exists(t, backend, store.DraggingPath("r1", "o1")))
	assert.Equal(t, true, exists(t, backend, store.DraggingPath("r1", "o2")))
}

type countingRooms struct {
	calls atomic.Int32
}

func (c *countingRooms) ActiveRooms() []string {
	c.calls.Add(1)
	return []string{"r1"}
}

func TestStartSweepsOnInterval(t *testing.T) {
	mock, backend := setup(t)
	rooms := &countingRooms{}
	j := NewJanitor(backend, rooms, time.Minute, 5*time.Second, time.Second, mock, nil)

	join(t, backend, "alice")
	j.Start()
	defer j.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && exists(t, backend, store.PresencePath("r1", "alice")) {
		mock.Add(time.Second)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, false, exists(t, backend, store.PresencePath("r1", "alice")))
	assert.Equal(t, true, rooms.calls.Load() > 0)
}

func TestSweepRoomTimeoutBoundary(t *testing.T) {
	mock, backend := setup(t)
	j := NewJanitor(backend, staticRooms{"r1"}, 15*time.Second, 5*time.Second, time.Second, mock, nil)
	ctx := context.Background()

	// the store clock stamps the drag at t and the heartbeat at t+1ms
	drag(t, backend, "o1", "alice")
	join(t, backend, "alice")

	mock.Add(5*time.Second - time.Millisecond)
	report, err := j.SweepRoom(ctx, "r1")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, report.Total())

	mock.Add(time.Millisecond)
	report, err = j.SweepRoom(ctx, "r1")
	assert.Equal(t, nil, err)
	assert.Equal(t, Report{Drags: 1}, report)

	mock.Add(10 * time.Second)
	report, err = j.SweepRoom(ctx, "r1")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, report.Total())

	mock.Add(time.Millisecond)
	report, err = j.SweepRoom(ctx, "r1")
	assert.Equal(t, nil, err)
	assert.Equal(t, Report{Participants: 1, Cursors: 1}, report)
}
