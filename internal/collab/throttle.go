package collab

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Throttler limits sends to one per key per interval. The first send of a
// window goes out at once; later sends in the window collapse into the last
// value, which goes out when the window closes and opens the next window.
type Throttler[V any] struct {
	interval time.Duration
	clock    clock.Clock
	send     func(key string, v V)

	mu      sync.Mutex
	windows map[string]*throttleWindow[V]
	stopped bool
}

type throttleWindow[V any] struct {
	timer   *clock.Timer
	pending bool
	value   V
}

func NewThrottler[V any](interval time.Duration, clk clock.Clock, send func(key string, v V)) *Throttler[V] {
	if clk == nil {
		clk = clock.New()
	}
	return &Throttler[V]{
		interval: interval,
		clock:    clk,
		send:     send,
		windows:  make(map[string]*throttleWindow[V]),
	}
}

// Send never blocks on the window. send may run on the caller's goroutine.
func (t *Throttler[V]) Send(key string, v V) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if w, ok := t.windows[key]; ok {
		w.pending = true
		w.value = v
		t.mu.Unlock()
		return
	}
	t.open(key)
	t.mu.Unlock()

	t.send(key, v)
}

// open starts a window for key. Caller holds mu.
func (t *Throttler[V]) open(key string) {
	w := &throttleWindow[V]{}
	w.timer = t.clock.AfterFunc(t.interval, func() { t.close(key, w) })
	t.windows[key] = w
}

func (t *Throttler[V]) close(key string, w *throttleWindow[V]) {
	t.mu.Lock()
	if t.stopped || t.windows[key] != w {
		t.mu.Unlock()
		return
	}
	delete(t.windows, key)
	if !w.pending {
		t.mu.Unlock()
		return
	}
	v := w.value
	t.open(key)
	t.mu.Unlock()

	t.send(key, v)
}

// Cancel drops the window for key and any value waiting in it.
func (t *Throttler[V]) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.windows[key]; ok {
		w.timer.Stop()
		delete(t.windows, key)
	}
}

// Len returns the number of open windows.
func (t *Throttler[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows)
}

// Stop cancels every window. Later sends are ignored.
func (t *Throttler[V]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for key, w := range t.windows {
		w.timer.Stop()
		delete(t.windows, key)
	}
}
