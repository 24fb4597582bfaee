package collab

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
)

func TestMerge(t *testing.T) {
	local := rect("r1", "red", "alice", 10)

	tests := []struct {
		name       string
		local      *model.Object
		remote     model.Object
		wantColor  string
		remoteWins bool
	}{
		{"no local copy", nil, rect("r1", "blue", "bob", 1), "blue", true},
		{"newer remote", &local, rect("r1", "blue", "bob", 11), "blue", true},
		{"older remote", &local, rect("r1", "blue", "bob", 9), "red", false},
		{"tie, greater writer", &local, rect("r1", "blue", "bob", 10), "blue", true},
		{"tie, smaller writer", &local, rect("r1", "blue", "aaron", 10), "red", false},
		{"identical record", &local, rect("r1", "red", "alice", 10), "red", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, took := Merge(tc.local, tc.remote)
			assert.Equal(t, tc.remoteWins, took)
			assert.Equal(t, `{"color":"`+tc.wantColor+`"}`, string(got.Props))
		})
	}
}

func TestMergeConvergesRegardlessOfOrder(t *testing.T) {
	writes := []model.Object{
		rect("r1", "red", "alice", 10),
		rect("r1", "blue", "bob", 12),
		rect("r1", "green", "carol", 12),
		rect("r1", "black", "dave", 11),
	}
	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}, {1, 3, 0, 2}}

	for _, order := range orders {
		r := NewReplica(time.Minute, newMock())
		for _, i := range order {
			r.ApplyRemote(writes[i])
		}
		got, _ := r.Get("r1")
		assert.Equal(t, "carol", got.LastModifiedBy)
		assert.Equal(t, int64(12), got.LastModified)
	}
}

func TestReplicaApplyIsIdempotent(t *testing.T) {
	r := NewReplica(time.Minute, newMock())
	rec := rect("r1", "red", "alice", 10)

	assert.Equal(t, true, r.ApplyRemote(rec))
	assert.Equal(t, false, r.ApplyRemote(rec))
	assert.Equal(t, 1, r.Len())
}

func TestReplicaSameContentNewerTimestamp(t *testing.T) {
	r := NewReplica(time.Minute, newMock())
	r.ApplyRemote(rect("r1", "red", "alice", 10))

	// nothing visible changed but the newer metadata is kept
	assert.Equal(t, false, r.ApplyRemote(rect("r1", "red", "bob", 20)))
	got, _ := r.Get("r1")
	assert.Equal(t, int64(20), got.LastModified)
}

func TestReplicaIgnoresMalformed(t *testing.T) {
	r := NewReplica(time.Minute, newMock())
	bad := rect("r1", "red", "alice", 10)
	bad.Type = ""
	assert.Equal(t, false, r.ApplyRemote(bad))

	noTS := rect("r1", "red", "alice", 0)
	assert.Equal(t, false, r.ApplyRemote(noTS))
	assert.Equal(t, 0, r.Len())
}

func TestReplicaDeleteWins(t *testing.T) {
	mock := newMock()
	r := NewReplica(time.Minute, mock)
	r.ApplyRemote(rect("r1", "red", "alice", 10))

	assert.Equal(t, true, r.Remove("r1"))
	// a later-stamped edit still cannot resurrect it
	assert.Equal(t, false, r.ApplyRemote(rect("r1", "blue", "bob", 99)))
	assert.Equal(t, false, r.Adopt(rect("r1", "blue", "bob", 99)))
	_, ok := r.Get("r1")
	assert.Equal(t, false, ok)

	mock.Add(time.Minute)
	r.Prune()
	assert.Equal(t, false, r.Tombstoned("r1"))
	assert.Equal(t, true, r.ApplyRemote(rect("r1", "blue", "bob", 100)))
}

func TestReplicaAdopt(t *testing.T) {
	r := NewReplica(time.Minute, newMock())
	r.PutLocal(rect("r1", "red", "alice", 0))

	assert.Equal(t, false, r.Adopt(rect("r1", "red", "alice", 42)))
	got, _ := r.Get("r1")
	assert.Equal(t, int64(42), got.LastModified)

	assert.Equal(t, true, r.Adopt(rect("r1", "blue", "alice", 43)))
}

func TestReplicaAllIsSorted(t *testing.T) {
	r := NewReplica(time.Minute, newMock())
	for _, id := range []string{"c", "a", "b"} {
		r.ApplyRemote(rect(id, "red", "alice", 1))
	}
	all := r.All()
	ids := []string{all[0].ObjectID, all[1].ObjectID, all[2].ObjectID}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
