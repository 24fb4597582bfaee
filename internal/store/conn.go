package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Conn binds a Backend to one client connection. It implements Store and
// holds the connection's on-disconnect actions until Close or Drop.
type Conn struct {
	ID string

	backend Backend

	mu      sync.Mutex
	actions map[string]DisconnectAction
	subs    map[*Subscription]struct{}
	closed  bool
}

func NewConn(backend Backend) *Conn {
	return &Conn{
		ID:      uuid.New().String(),
		backend: backend,
		actions: make(map[string]DisconnectAction),
		subs:    make(map[*Subscription]struct{}),
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Put(ctx context.Context, path string, value json.RawMessage, opts ...PutOption) (int64, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	return c.backend.Put(ctx, path, value, opts...)
}

func (c *Conn) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return c.backend.Get(ctx, path)
}

func (c *Conn) Delete(ctx context.Context, path string, opts ...DeleteOption) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.backend.Delete(ctx, path, opts...)
}

func (c *Conn) Subscribe(ctx context.Context, prefix string) (*Subscription, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	inner, err := c.backend.Subscribe(ctx, prefix)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		inner.Close()
		return nil, ErrClosed
	}
	c.subs[inner] = struct{}{}

	return NewSubscription(inner.C, func() {
		inner.Close()
		c.mu.Lock()
		delete(c.subs, inner)
		c.mu.Unlock()
	}), nil
}

func (c *Conn) OnDisconnect(ctx context.Context, path string, action DisconnectAction) error {
	if _, err := ParsePath(path); err != nil {
		return err
	}
	if err := action.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.actions[path] = action
	return nil
}

func (c *Conn) CancelOnDisconnect(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	delete(c.actions, path)
	return nil
}

// PendingActions returns the number of registered on-disconnect actions.
func (c *Conn) PendingActions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actions)
}

// Close is a clean close: registered actions are discarded.
func (c *Conn) Close() error {
	c.shutdown()
	return nil
}

// Drop is an unclean disconnect: registered actions run against the backend.
func (c *Conn) Drop(ctx context.Context) error {
	actions := c.shutdown()

	var errs []error
	for path, action := range actions {
		var err error
		switch action.Op {
		case ActionDelete:
			err = c.backend.Delete(ctx, path)
		case ActionSet:
			var opts []PutOption
			if action.TimestampField != "" {
				opts = append(opts, WithServerTimestamp(action.TimestampField))
			}
			_, err = c.backend.Put(ctx, path, action.Value, opts...)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("on-disconnect %s %s: %w", action.Op, path, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Conn) shutdown() map[string]DisconnectAction {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	actions := c.actions
	c.actions = make(map[string]DisconnectAction)
	subs := make([]*Subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.subs = make(map[*Subscription]struct{})
	c.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return actions
}
