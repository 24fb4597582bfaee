package handler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/TURahim/collab-canvas-sub001/internal/auth"
	"github.com/TURahim/collab-canvas-sub001/internal/session"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

type fakeLifecycle struct {
	mu      sync.Mutex
	opened  []string
	closed  []string
	openErr error
}

func (f *fakeLifecycle) Open(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = append(f.opened, roomID)
	return nil
}

func (f *fakeLifecycle) Close(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, roomID)
	return nil
}

func newTestSession(backend store.Backend, roomID, participantID string) *session.Session {
	return session.New(roomID, auth.Identity{ParticipantID: participantID}, store.NewConn(backend))
}

func TestRoomHubLifecycle(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()
	lc := &fakeLifecycle{}
	hub := NewRoomHub(lc, nil)
	ctx := context.Background()

	a := newTestSession(backend, "r1", "alice")
	b := newTestSession(backend, "r1", "bob")
	c := newTestSession(backend, "r2", "carol")
	for _, s := range []*session.Session{a, b, c} {
		assert.Equal(t, nil, hub.Join(ctx, s))
	}

	assert.Equal(t, []string{"r1", "r2"}, lc.opened)
	assert.Equal(t, []string{"r1", "r2"}, hub.ActiveRooms())

	stats := hub.Stats()
	assert.Equal(t, 2, len(stats))
	assert.Equal(t, "r1", stats[0].ID)
	assert.Equal(t, 2, stats[0].Connections)
	assert.Equal(t, []string{"alice", "bob"}, stats[0].Participants)

	hub.Leave(ctx, a)
	assert.Equal(t, 0, len(lc.closed))
	hub.Leave(ctx, b)
	assert.Equal(t, []string{"r1"}, lc.closed)
	assert.Equal(t, []string{"r2"}, hub.ActiveRooms())

	// leaving twice is harmless
	hub.Leave(ctx, b)
	assert.Equal(t, []string{"r1"}, lc.closed)
}

func TestRoomHubJoinFailsWhenOpenFails(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()
	lc := &fakeLifecycle{openErr: errors.New("db down")}
	hub := NewRoomHub(lc, nil)

	err := hub.Join(context.Background(), newTestSession(backend, "r1", "alice"))
	assert.NotEqual(t, nil, err)
	assert.Equal(t, 0, len(hub.ActiveRooms()))
}

func TestRoomHubShutdownRunsDisconnectActions(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()
	hub := NewRoomHub(nil, nil)
	ctx := context.Background()

	s := newTestSession(backend, "r1", "alice")
	assert.Equal(t, nil, hub.Join(ctx, s))

	path := store.CursorPath("r1", "alice")
	_, err := s.Store().Put(ctx, path, []byte(`{"x":1,"y":1}`))
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, s.Store().OnDisconnect(ctx, path, store.DeleteOnDisconnect()))

	assert.Equal(t, nil, hub.Shutdown(ctx))
	assert.Equal(t, session.StateClosed, s.GetState())
	assert.Equal(t, 0, len(hub.ActiveRooms()))

	v, err := backend.Get(ctx, path)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, v == nil)
}
