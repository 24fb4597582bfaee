package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/TURahim/collab-canvas-sub001/internal/mailbox"
)

const defaultSweepInterval = 500 * time.Millisecond

type memEntry struct {
	value   json.RawMessage
	expires time.Time
}

type memSub struct {
	prefix string
	box    *mailbox.Mailbox[Change]
}

// MemoryBackend is a single-process Backend. Every mutation is applied and
// fanned out under one lock, which gives subscribers a single total order.
type MemoryBackend struct {
	clock clock.Clock

	mu         sync.Mutex
	last       int64
	entries    map[string]memEntry
	tombstones map[string]time.Time
	subs       map[uint64]*memSub
	nextSub    uint64
	closed     bool

	stop chan struct{}
	wg   sync.WaitGroup
}

type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	clock         clock.Clock
	sweepInterval time.Duration
}

func WithMemoryClock(c clock.Clock) MemoryOption {
	return func(o *memoryOptions) { o.clock = c }
}

func WithSweepInterval(d time.Duration) MemoryOption {
	return func(o *memoryOptions) { o.sweepInterval = d }
}

func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	o := memoryOptions{clock: clock.New(), sweepInterval: defaultSweepInterval}
	for _, opt := range opts {
		opt(&o)
	}

	b := &MemoryBackend{
		clock:      o.clock,
		entries:    make(map[string]memEntry),
		tombstones: make(map[string]time.Time),
		subs:       make(map[uint64]*memSub),
		stop:       make(chan struct{}),
	}

	b.wg.Add(1)
	go b.sweepLoop(o.sweepInterval)
	return b
}

// tick returns a strictly increasing millisecond timestamp. Caller holds mu.
func (b *MemoryBackend) tick() int64 {
	now := b.clock.Now().UnixMilli()
	if now <= b.last {
		now = b.last + 1
	}
	b.last = now
	return now
}

func (b *MemoryBackend) Now(ctx context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	return b.tick(), nil
}

func (b *MemoryBackend) Put(ctx context.Context, path string, value json.RawMessage, opts ...PutOption) (int64, error) {
	if _, err := ParsePath(path); err != nil {
		return 0, err
	}
	if err := checkValue(value); err != nil {
		return 0, err
	}
	o := ResolvePut(opts...)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}

	now := b.clock.Now()
	if until, ok := b.tombstones[path]; ok {
		if now.Before(until) {
			return 0, ErrTombstoned
		}
		delete(b.tombstones, path)
	}

	var ts int64
	if o.TimestampField != "" {
		ts = b.tick()
		stamped, err := Stamp(value, o.TimestampField, ts)
		if err != nil {
			return 0, err
		}
		value = stamped
	} else {
		value = clone(value)
	}

	entry := memEntry{value: value}
	if o.TTL > 0 {
		entry.expires = now.Add(o.TTL)
	}

	_, existed := b.live(path, now)
	b.entries[path] = entry

	changeType := ChangeModified
	if !existed {
		changeType = ChangeAdded
	}
	b.publish(Change{Path: path, Type: changeType, Value: clone(value)})
	return ts, nil
}

func (b *MemoryBackend) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if _, err := ParsePath(path); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	entry, ok := b.live(path, b.clock.Now())
	if !ok {
		return nil, nil
	}
	return clone(entry.value), nil
}

func (b *MemoryBackend) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	return b.snapshot(prefix, b.clock.Now()), nil
}

func (b *MemoryBackend) Delete(ctx context.Context, path string, opts ...DeleteOption) error {
	if _, err := ParsePath(path); err != nil {
		return err
	}
	o := ResolveDelete(opts...)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	now := b.clock.Now()
	if o.Tombstone > 0 {
		b.tombstones[path] = now.Add(o.Tombstone)
	}
	if _, ok := b.live(path, now); ok {
		delete(b.entries, path)
		b.publish(Change{Path: path, Type: ChangeRemoved})
	}
	return nil
}

func (b *MemoryBackend) Subscribe(ctx context.Context, prefix string) (*Subscription, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	box := mailbox.New[Change]()
	for _, e := range b.snapshot(prefix, b.clock.Now()) {
		box.Push(Change{Path: e.Path, Type: ChangeAdded, Value: e.Value})
	}

	b.nextSub++
	id := b.nextSub
	b.subs[id] = &memSub{prefix: prefix, box: box}

	return NewSubscription(box.C(), func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		box.Close()
	}), nil
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for id, s := range b.subs {
		s.box.Close()
		delete(b.subs, id)
	}
	b.mu.Unlock()

	close(b.stop)
	b.wg.Wait()
	return nil
}

// Sweep expires TTL'd entries and tombstones. It runs periodically on its own
// and is exported so tests can drive it.
func (b *MemoryBackend) Sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	now := b.clock.Now()
	paths := make([]string, 0)
	for path, e := range b.entries {
		if expired(e, now) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		delete(b.entries, path)
		b.publish(Change{Path: path, Type: ChangeRemoved})
	}
	for path, until := range b.tombstones {
		if !now.Before(until) {
			delete(b.tombstones, path)
		}
	}
}

func (b *MemoryBackend) sweepLoop(interval time.Duration) {
	defer b.wg.Done()

	ticker := b.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.Sweep()
		}
	}
}

// live returns the entry at path, removing it first if it has expired.
// Caller holds mu.
func (b *MemoryBackend) live(path string, now time.Time) (memEntry, bool) {
	e, ok := b.entries[path]
	if !ok {
		return memEntry{}, false
	}
	if expired(e, now) {
		delete(b.entries, path)
		b.publish(Change{Path: path, Type: ChangeRemoved})
		return memEntry{}, false
	}
	return e, true
}

// snapshot lists live entries under prefix in path order. Caller holds mu.
func (b *MemoryBackend) snapshot(prefix string, now time.Time) []Entry {
	out := make([]Entry, 0)
	for path, e := range b.entries {
		if strings.HasPrefix(path, prefix) && !expired(e, now) {
			out = append(out, Entry{Path: path, Value: clone(e.value)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// publish fans a change out to every matching subscriber. Caller holds mu.
func (b *MemoryBackend) publish(c Change) {
	for _, s := range b.subs {
		if strings.HasPrefix(c.Path, s.prefix) {
			s.box.Push(Change{Path: c.Path, Type: c.Type, Value: clone(c.Value)})
		}
	}
}

func expired(e memEntry, now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}
