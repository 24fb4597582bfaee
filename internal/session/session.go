package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TURahim/collab-canvas-sub001/internal/auth"
	"github.com/TURahim/collab-canvas-sub001/internal/mailbox"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

// ErrDuplicateSubscription is returned when a subscribe request reuses an id.
var ErrDuplicateSubscription = errors.New("session: subscription id already in use")

// State WebSocket 연결 상태
type State int

const (
	StateOpen    State = iota // 요청 처리 중
	StateClosing              // 종료 처리 중
	StateClosed               // 연결 종료
)

// String 상태를 문자열로 반환
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the server-side state of one websocket store connection: the
// participant it writes as, its store.Conn and the subscriptions it forwards.
type Session struct {
	ID          string
	RoomID      string
	Identity    auth.Identity
	ConnectedAt time.Time

	conn *store.Conn

	mu    sync.RWMutex
	state State
	subs  map[uint64]*store.Subscription

	framesIn  atomic.Uint64
	framesOut atomic.Uint64

	// Outbound is drained by the connection's single writer.
	outbound *mailbox.Mailbox[store.Frame]

	ctx    context.Context
	cancel context.CancelFunc
}

// New 새 세션 생성
func New(roomID string, identity auth.Identity, conn *store.Conn) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		ID:          conn.ID,
		RoomID:      roomID,
		Identity:    identity,
		ConnectedAt: time.Now(),
		conn:        conn,
		state:       StateOpen,
		subs:        make(map[uint64]*store.Subscription),
		outbound:    mailbox.New[store.Frame](),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context is cancelled when the session starts closing.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Store returns the connection-bound store.
func (s *Session) Store() *store.Conn {
	return s.conn
}

// Outbound yields frames to write, in order.
func (s *Session) Outbound() <-chan store.Frame {
	return s.outbound.C()
}

// Send queues f for the writer. It reports false once closing.
func (s *Session) Send(f store.Frame) bool {
	if !s.outbound.Push(f) {
		return false
	}
	s.framesOut.Add(1)
	return true
}

// Received counts an inbound frame.
func (s *Session) Received() uint64 {
	return s.framesIn.Add(1)
}

// Stats returns the inbound and outbound frame counts.
func (s *Session) Stats() (in, out uint64) {
	return s.framesIn.Load(), s.framesOut.Load()
}

// AddSubscription registers sub under the subscribe request id.
func (s *Session) AddSubscription(id uint64, sub *store.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen {
		return store.ErrClosed
	}
	if _, exists := s.subs[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateSubscription, id)
	}
	s.subs[id] = sub
	return nil
}

// RemoveSubscription closes and forgets subscription id.
func (s *Session) RemoveSubscription(id uint64) bool {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()

	if ok {
		sub.Close()
	}
	return ok
}

// Subscriptions returns the number of live subscriptions.
func (s *Session) Subscriptions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// GetState 현재 상태 조회
func (s *Session) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Close ends the session. A clean close discards the connection's
// on-disconnect actions; an unclean one runs them. Only the first call acts.
func (s *Session) Close(ctx context.Context, clean bool) error {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosing
	subs := s.subs
	s.subs = make(map[uint64]*store.Subscription)
	s.mu.Unlock()

	s.cancel()
	for _, sub := range subs {
		sub.Close()
	}

	var err error
	if clean {
		err = s.conn.Close()
	} else {
		err = s.conn.Drop(ctx)
	}
	s.outbound.Close()

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	return err
}
