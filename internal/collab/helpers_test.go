package collab

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

const waitFor = 3 * time.Second

func newMock() *clock.Mock {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_700_000_000_000))
	return mock
}

// eventually polls cond until it holds. Mock clock callbacks run on their
// own goroutines, so effects of Add are not visible immediately.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

// advanceUntil moves the mock forward in steps until cond holds.
func advanceUntil(t *testing.T, mock *clock.Mock, step time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		mock.Add(step)
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

type recorder[V any] struct {
	mu    sync.Mutex
	calls []V
}

func (r *recorder[V]) record(_ string, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, v)
}

func (r *recorder[V]) values() []V {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]V(nil), r.calls...)
}

func (r *recorder[V]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
