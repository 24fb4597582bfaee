package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/TURahim/collab-canvas-sub001/internal/auth"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

func newSession(t *testing.T) (*Session, *store.MemoryBackend) {
	t.Helper()
	backend := store.NewMemoryBackend()
	t.Cleanup(func() { backend.Close() })
	s := New("r1", auth.Identity{ParticipantID: "alice"}, store.NewConn(backend))
	return s, backend
}

func TestSendIsOrdered(t *testing.T) {
	s, _ := newSession(t)
	defer s.Close(context.Background(), true)

	for i := uint64(1); i <= 3; i++ {
		assert.Equal(t, true, s.Send(store.Frame{ID: i, Op: store.OpReply}))
	}
	for i := uint64(1); i <= 3; i++ {
		select {
		case f := <-s.Outbound():
			assert.Equal(t, i, f.ID)
		case <-time.After(time.Second):
			t.Fatal("frame not delivered")
		}
	}
	_, out := s.Stats()
	assert.Equal(t, uint64(3), out)
}

func TestSubscriptions(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	sub, err := s.Store().Subscribe(ctx, store.RoomPrefix("r1"))
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, s.AddSubscription(7, sub))
	assert.Equal(t, true, errors.Is(s.AddSubscription(7, sub), ErrDuplicateSubscription))
	assert.Equal(t, 1, s.Subscriptions())

	assert.Equal(t, true, s.RemoveSubscription(7))
	assert.Equal(t, false, s.RemoveSubscription(7))
	assert.Equal(t, 0, s.Subscriptions())
	s.Close(ctx, true)
}

func TestCloseUncleanRunsDisconnectActions(t *testing.T) {
	s, backend := newSession(t)
	ctx := context.Background()
	path := store.PresencePath("r1", "alice")

	_, err := s.Store().Put(ctx, path, json.RawMessage(`{"participantId":"alice"}`))
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, s.Store().OnDisconnect(ctx, path, store.DeleteOnDisconnect()))

	assert.Equal(t, nil, s.Close(ctx, false))
	assert.Equal(t, StateClosed, s.GetState())
	assert.Equal(t, false, s.Send(store.Frame{Op: store.OpReply}))
	assert.NotEqual(t, nil, s.Context().Err())

	v, err := backend.Get(ctx, path)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, v == nil)
}

func TestCloseCleanKeepsRecords(t *testing.T) {
	s, backend := newSession(t)
	ctx := context.Background()
	path := store.PresencePath("r1", "alice")

	s.Store().Put(ctx, path, json.RawMessage(`{"participantId":"alice"}`))
	s.Store().OnDisconnect(ctx, path, store.DeleteOnDisconnect())

	assert.Equal(t, nil, s.Close(ctx, true))
	assert.Equal(t, nil, s.Close(ctx, false))

	v, _ := backend.Get(ctx, path)
	assert.NotEqual(t, true, v == nil)
	assert.Equal(t, "closed", s.GetState().String())
}
