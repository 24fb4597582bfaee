package collab

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

func testConfig() Config {
	return Config{
		DebounceInterval:  10 * time.Millisecond,
		PendingGrace:      time.Second,
		HeartbeatInterval: 15 * time.Second,
		SweepInterval:     time.Second,
		RetryAttempts:     3,
		RetryInitial:      time.Millisecond,
		RetryMax:          5 * time.Millisecond,
		CloseTimeout:      2 * time.Second,
	}
}

func TestPresenceJoinLeave(t *testing.T) {
	mock := newMock()
	backend := store.NewMemoryBackend(store.WithMemoryClock(mock), store.WithSweepInterval(time.Hour))
	defer backend.Close()
	conn := store.NewConn(backend)
	defer conn.Close()
	ctx := context.Background()

	self := model.Participant{ParticipantID: "alice", DisplayName: "Alice", Color: "#e11"}
	p := NewPresence(conn, "room1", self, testConfig(), mock, nil)
	assert.Equal(t, Joining, p.State())

	if err := p.Join(ctx); err != nil {
		t.Fatalf("join: %v", err)
	}
	assert.Equal(t, Active, p.State())
	assert.Equal(t, 2, conn.PendingActions())

	raw, err := backend.Get(ctx, store.PresencePath("room1", "alice"))
	if err != nil {
		t.Fatal(err)
	}
	rec, err := model.DecodeParticipant(raw)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, true, rec.Online)
	assert.Equal(t, "Alice", rec.DisplayName)
	assert.Equal(t, mock.Now().UnixMilli(), rec.LastHeartbeat)

	mock.Add(time.Second)
	if err := p.Heartbeat(ctx); err != nil {
		t.Fatal(err)
	}
	raw, _ = backend.Get(ctx, store.PresencePath("room1", "alice"))
	rec, _ = model.DecodeParticipant(raw)
	assert.Equal(t, mock.Now().UnixMilli(), rec.LastHeartbeat)

	if err := p.Leave(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
	assert.Equal(t, Departed, p.State())
	assert.Equal(t, 0, conn.PendingActions())

	raw, _ = backend.Get(ctx, store.PresencePath("room1", "alice"))
	assert.Equal(t, true, raw == nil)

	// heartbeats after leaving are no-ops
	if err := p.Heartbeat(ctx); err != nil {
		t.Fatal(err)
	}
	raw, _ = backend.Get(ctx, store.PresencePath("room1", "alice"))
	assert.Equal(t, true, raw == nil)
}

func TestPresenceJoinCleanupOnDrop(t *testing.T) {
	mock := newMock()
	backend := store.NewMemoryBackend(store.WithMemoryClock(mock), store.WithSweepInterval(time.Hour))
	defer backend.Close()
	conn := store.NewConn(backend)
	ctx := context.Background()

	p := NewPresence(conn, "room1", model.Participant{ParticipantID: "alice"}, testConfig(), mock, nil)
	if err := p.Join(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Put(ctx, store.CursorPath("room1", "alice"), json.RawMessage(`{"x":1,"y":2}`)); err != nil {
		t.Fatal(err)
	}

	if err := conn.Drop(ctx); err != nil {
		t.Fatal(err)
	}
	entries, err := backend.List(ctx, store.RoomPrefix("room1"))
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, len(entries))
}

func TestPresenceObserveAndSweep(t *testing.T) {
	mock := newMock()
	cfg := testConfig().WithDefaults()
	p := NewPresence(nil, "room1", model.Participant{ParticipantID: "alice"}, cfg, mock, nil)

	now := mock.Now().UnixMilli()
	joined, changed := p.Observe(model.Participant{ParticipantID: "bob", DisplayName: "Bob", LastHeartbeat: now})
	assert.Equal(t, true, joined)
	assert.Equal(t, true, changed)

	// a heartbeat refresh is not a visible change
	joined, changed = p.Observe(model.Participant{ParticipantID: "bob", DisplayName: "Bob", LastHeartbeat: now + 10})
	assert.Equal(t, false, joined)
	assert.Equal(t, false, changed)

	// an older record is a stale delivery
	_, changed = p.Observe(model.Participant{ParticipantID: "bob", DisplayName: "Robert", LastHeartbeat: now})
	assert.Equal(t, false, changed)

	p.Observe(model.Participant{ParticipantID: "alice", LastHeartbeat: now})

	mock.Add(cfg.StaleTimeout - time.Second)
	assert.Equal(t, 0, len(p.Sweep()))

	mock.Add(time.Second + 10*time.Millisecond)
	assert.Equal(t, []string{"bob"}, p.Sweep())

	// self is never swept
	parts := p.Participants()
	assert.Equal(t, 1, len(parts))
	assert.Equal(t, "alice", parts[0].ParticipantID)
}

func TestPresenceStateString(t *testing.T) {
	assert.Equal(t, "joining", Joining.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "departed", Departed.String())
}
