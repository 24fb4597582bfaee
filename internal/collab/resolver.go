package collab

import (
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
)

// Merge picks the winner of a local and a remote version of one object. The
// whole record wins; fields are never combined. The greater server timestamp
// wins, then the greater lastModifiedBy. It reports whether remote won.
func Merge(local *model.Object, remote model.Object) (model.Object, bool) {
	if local == nil {
		return remote, true
	}
	switch {
	case remote.LastModified > local.LastModified:
		return remote, true
	case remote.LastModified < local.LastModified:
		return *local, false
	case remote.LastModifiedBy > local.LastModifiedBy:
		return remote, true
	}
	return *local, false
}

// Replica is one client's view of a room's objects plus the tombstones of
// objects it saw deleted. It is not safe for concurrent use.
type Replica struct {
	clock        clock.Clock
	tombstoneTTL time.Duration

	objects    map[string]model.Object
	tombstones map[string]time.Time
}

func NewReplica(tombstoneTTL time.Duration, clk clock.Clock) *Replica {
	if clk == nil {
		clk = clock.New()
	}
	return &Replica{
		clock:        clk,
		tombstoneTTL: tombstoneTTL,
		objects:      make(map[string]model.Object),
		tombstones:   make(map[string]time.Time),
	}
}

// Tombstoned reports whether objectID was deleted within the tombstone TTL.
func (r *Replica) Tombstoned(objectID string) bool {
	until, ok := r.tombstones[objectID]
	if !ok {
		return false
	}
	if !r.clock.Now().Before(until) {
		delete(r.tombstones, objectID)
		return false
	}
	return true
}

// ApplyRemote merges a remote record and reports whether the visible content
// changed. A winning record with the same content still replaces the stored
// metadata. Invalid records and records for deleted objects are ignored.
func (r *Replica) ApplyRemote(remote model.Object) bool {
	if remote.Validate() != nil || r.Tombstoned(remote.ObjectID) {
		return false
	}
	var local *model.Object
	cur, existed := r.objects[remote.ObjectID]
	if existed {
		local = &cur
	}
	winner, took := Merge(local, remote)
	if !took {
		return false
	}
	r.objects[remote.ObjectID] = winner.Clone()
	return !existed || !cur.SameContent(winner)
}

// Adopt takes an echoed record as-is so the replica carries the server
// timestamp. It reports whether the visible content changed.
func (r *Replica) Adopt(remote model.Object) bool {
	if remote.Validate() != nil || r.Tombstoned(remote.ObjectID) {
		return false
	}
	cur, ok := r.objects[remote.ObjectID]
	r.objects[remote.ObjectID] = remote.Clone()
	return !ok || !cur.SameContent(remote)
}

// PutLocal stores an optimistic local value.
func (r *Replica) PutLocal(obj model.Object) {
	r.objects[obj.ObjectID] = obj.Clone()
}

// Remove deletes the object and tombstones its id. It reports whether the
// object was present.
func (r *Replica) Remove(objectID string) bool {
	_, ok := r.objects[objectID]
	delete(r.objects, objectID)
	r.tombstones[objectID] = r.clock.Now().Add(r.tombstoneTTL)
	return ok
}

func (r *Replica) Get(objectID string) (model.Object, bool) {
	o, ok := r.objects[objectID]
	if !ok {
		return model.Object{}, false
	}
	return o.Clone(), true
}

// All returns every object ordered by id.
func (r *Replica) All() []model.Object {
	out := make([]model.Object, 0, len(r.objects))
	for _, o := range r.objects {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID < out[j].ObjectID })
	return out
}

func (r *Replica) Len() int {
	return len(r.objects)
}

// Prune drops expired tombstones.
func (r *Replica) Prune() {
	now := r.clock.Now()
	for id, until := range r.tombstones {
		if !now.Before(until) {
			delete(r.tombstones, id)
		}
	}
}
