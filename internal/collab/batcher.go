package collab

import (
	"sort"
	"sync"
	"time"

	"github.com/bep/debounce"
)

// Batcher writes the latest value for a key once calls for that key have
// been quiet for the debounce interval.
type Batcher[V any] struct {
	delay time.Duration
	flush func(key string, v V)

	mu      sync.Mutex
	seq     uint64
	entries map[string]*batchEntry[V]
	stopped bool
}

type batchEntry[V any] struct {
	debounced func(func())
	value     V
	seq       uint64
}

func NewBatcher[V any](delay time.Duration, flush func(key string, v V)) *Batcher[V] {
	return &Batcher[V]{
		delay:   delay,
		flush:   flush,
		entries: make(map[string]*batchEntry[V]),
	}
}

// Schedule replaces the pending value for key and restarts its timer.
func (b *Batcher[V]) Schedule(key string, v V) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	e, ok := b.entries[key]
	if !ok {
		e = &batchEntry[V]{debounced: debounce.New(b.delay)}
		b.entries[key] = e
	}
	b.seq++
	e.value = v
	e.seq = b.seq

	seq := e.seq
	e.debounced(func() { b.fire(key, seq) })
}

func (b *Batcher[V]) fire(key string, seq uint64) {
	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok || e.seq != seq || b.stopped {
		b.mu.Unlock()
		return
	}
	delete(b.entries, key)
	v := e.value
	b.mu.Unlock()

	b.flush(key, v)
}

// Pending returns the value waiting for key, if any.
func (b *Batcher[V]) Pending(key string) (V, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Cancel discards the pending value for key. The timer still runs out but
// finds nothing to write.
func (b *Batcher[V]) Cancel(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[key]
	delete(b.entries, key)
	return ok
}

// FlushAll writes every pending value now, in key order.
func (b *Batcher[V]) FlushAll() {
	b.mu.Lock()
	keys := make([]string, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	values := make([]V, len(keys))
	for i, key := range keys {
		values[i] = b.entries[key].value
		delete(b.entries, key)
	}
	b.mu.Unlock()

	for i, key := range keys {
		b.flush(key, values[i])
	}
}

func (b *Batcher[V]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Stop discards pending values and ignores later calls.
func (b *Batcher[V]) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.entries = make(map[string]*batchEntry[V])
}
