package collab

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
)

// Verdict is the guard's decision about a remote object update.
type Verdict int

const (
	// Apply means the object has no pending self-write.
	Apply Verdict = iota
	// Echo is this client's pending value coming back. The entry is evicted.
	Echo
	// StaleEcho is an earlier self-write, or a value not newer than the
	// write this client issued, arriving while a newer local value is
	// pending. It must be dropped.
	StaleEcho
	// Conflict is someone else's value arriving while a self-write is pending.
	Conflict
)

func (v Verdict) String() string {
	switch v {
	case Apply:
		return "apply"
	case Echo:
		return "echo"
	case StaleEcho:
		return "stale-echo"
	case Conflict:
		return "conflict"
	}
	return "unknown"
}

// LoopGuard remembers self-originated object writes until the store echoes
// them back or a grace period passes.
type LoopGuard struct {
	grace time.Duration
	clock clock.Clock

	mu      sync.Mutex
	seq     uint64
	pending map[string]*guardEntry
}

type guardEntry struct {
	write model.PendingWrite
	seq   uint64
	timer *clock.Timer
}

func NewLoopGuard(grace time.Duration, clk clock.Clock) *LoopGuard {
	if clk == nil {
		clk = clock.New()
	}
	return &LoopGuard{
		grace:   grace,
		clock:   clk,
		pending: make(map[string]*guardEntry),
	}
}

// Mark records a local value before its write is scheduled and returns a
// token for Confirm. A newer Mark for the same object replaces the older one.
func (g *LoopGuard) Mark(obj model.Object) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var issued int64
	if old, ok := g.pending[obj.ObjectID]; ok {
		old.timer.Stop()
		issued = old.write.IssuedAt
	}
	g.seq++
	e := &guardEntry{
		write: model.PendingWrite{
			ObjectID:    obj.ObjectID,
			LocalValue:  obj.Clone(),
			SubmittedAt: g.clock.Now(),
			IssuedAt:    issued,
		},
		seq: g.seq,
	}
	e.timer = g.startGrace(obj.ObjectID, e)
	g.pending[obj.ObjectID] = e
	return e.seq
}

// Confirm stores the server timestamp of an issued write. The grace period
// restarts from here since the echo cannot arrive before the write did.
func (g *LoopGuard) Confirm(objectID string, token uint64, ts int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.pending[objectID]
	if !ok {
		return
	}
	// an older write confirming late still bounds what counts as an echo
	if ts > e.write.IssuedAt {
		e.write.IssuedAt = ts
	}
	if e.seq != token {
		return
	}
	e.timer.Stop()
	e.timer = g.startGrace(objectID, e)
}

// Observe classifies a remote update. A matching echo evicts the entry.
func (g *LoopGuard) Observe(remote model.Object) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.pending[remote.ObjectID]
	if !ok {
		return Apply
	}
	if e.write.LocalValue.SameContent(remote) {
		g.evict(remote.ObjectID)
		return Echo
	}
	if remote.LastModifiedBy == e.write.LocalValue.LastModifiedBy {
		return StaleEcho
	}
	if e.write.IssuedAt > 0 {
		if remote.LastModified <= e.write.IssuedAt {
			return StaleEcho
		}
		// a later write from someone else superseded ours
		g.evict(remote.ObjectID)
	}
	return Conflict
}

// Forget drops the entry for objectID.
func (g *LoopGuard) Forget(objectID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evict(objectID)
}

// Pending returns the tracked write for objectID.
func (g *LoopGuard) Pending(objectID string) (model.PendingWrite, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.pending[objectID]
	if !ok {
		return model.PendingWrite{}, false
	}
	return e.write, true
}

func (g *LoopGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Stop cancels every grace timer.
func (g *LoopGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id := range g.pending {
		g.evict(id)
	}
}

// Caller holds mu.
func (g *LoopGuard) startGrace(objectID string, e *guardEntry) *clock.Timer {
	return g.clock.AfterFunc(g.grace, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.pending[objectID] == e {
			delete(g.pending, objectID)
		}
	})
}

// Caller holds mu.
func (g *LoopGuard) evict(objectID string) {
	if e, ok := g.pending[objectID]; ok {
		e.timer.Stop()
		delete(g.pending, objectID)
	}
}
