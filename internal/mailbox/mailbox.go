// Package mailbox provides an unbounded FIFO that hands items to a single
// consumer over a channel. Producers never block, so a slow consumer cannot
// stall the store's fan-out or a timer callback.
package mailbox

import "sync"

// Mailbox delivers pushed items on C in push order.
type Mailbox[T any] struct {
	out    chan T
	signal chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	items  []T
	closed bool
	once   sync.Once
}

// New starts a mailbox.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{
		out:    make(chan T),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// C is closed after Close, once the consumer stops being fed.
func (m *Mailbox[T]) C() <-chan T {
	return m.out
}

// Push appends v. It returns false once the mailbox is closed.
func (m *Mailbox[T]) Push(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of undelivered items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close discards undelivered items and closes C.
func (m *Mailbox[T]) Close() {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.items = nil
		m.mu.Unlock()
		close(m.done)
	})
}

func (m *Mailbox[T]) run() {
	defer close(m.out)

	var zero T
	for {
		m.mu.Lock()
		if len(m.items) == 0 {
			m.mu.Unlock()
			select {
			case <-m.signal:
				continue
			case <-m.done:
				return
			}
		}
		v := m.items[0]
		m.items[0] = zero
		m.items = m.items[1:]
		m.mu.Unlock()

		select {
		case m.out <- v:
		case <-m.done:
			return
		}
	}
}
