// Package store defines the remote state store the sync core writes to and
// subscribes on, plus the backends and transports that fulfil it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNotFound         = errors.New("store: not found")
	ErrPermissionDenied = errors.New("store: permission denied")
	ErrTombstoned       = errors.New("store: path was deleted")
	ErrInvalidPath      = errors.New("store: invalid path")
	ErrInvalidValue     = errors.New("store: value must be a JSON object")
	ErrClosed           = errors.New("store: closed")
)

// ChangeType classifies a fan-out notification.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is delivered to subscribers in the order the store applied it.
type Change struct {
	Path  string          `json:"path"`
	Type  ChangeType      `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Entry is a stored path and value.
type Entry struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// Store is the client-facing contract used by the sync core. Implementations
// are bound to one logical connection so that on-disconnect actions can be
// attributed to it.
type Store interface {
	Put(ctx context.Context, path string, value json.RawMessage, opts ...PutOption) (int64, error)
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Delete(ctx context.Context, path string, opts ...DeleteOption) error
	Subscribe(ctx context.Context, prefix string) (*Subscription, error)
	OnDisconnect(ctx context.Context, path string, action DisconnectAction) error
	CancelOnDisconnect(ctx context.Context, path string) error
	Close() error
}

// Backend is the shared server-side store. It owns the authoritative clock.
type Backend interface {
	Put(ctx context.Context, path string, value json.RawMessage, opts ...PutOption) (int64, error)
	Get(ctx context.Context, path string) (json.RawMessage, error)
	List(ctx context.Context, prefix string) ([]Entry, error)
	Delete(ctx context.Context, path string, opts ...DeleteOption) error
	Subscribe(ctx context.Context, prefix string) (*Subscription, error)
	Now(ctx context.Context) (int64, error)
	Close() error
}

// PutOptions is the resolved form of a Put's options.
type PutOptions struct {
	TimestampField string
	TTL            time.Duration
}

type PutOption func(*PutOptions)

// WithServerTimestamp asks the store to set field to its own clock.
func WithServerTimestamp(field string) PutOption {
	return func(o *PutOptions) { o.TimestampField = field }
}

// WithTTL lets the backend expire the value if it is not rewritten.
func WithTTL(d time.Duration) PutOption {
	return func(o *PutOptions) { o.TTL = d }
}

func ResolvePut(opts ...PutOption) PutOptions {
	var o PutOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Options converts back into a slice, for transports that forward them.
func (o PutOptions) Options() []PutOption {
	var opts []PutOption
	if o.TimestampField != "" {
		opts = append(opts, WithServerTimestamp(o.TimestampField))
	}
	if o.TTL > 0 {
		opts = append(opts, WithTTL(o.TTL))
	}
	return opts
}

type DeleteOptions struct {
	Tombstone time.Duration
}

type DeleteOption func(*DeleteOptions)

// WithTombstone rejects puts to the deleted path for ttl.
func WithTombstone(ttl time.Duration) DeleteOption {
	return func(o *DeleteOptions) { o.Tombstone = ttl }
}

func ResolveDelete(opts ...DeleteOption) DeleteOptions {
	var o DeleteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o DeleteOptions) Options() []DeleteOption {
	if o.Tombstone > 0 {
		return []DeleteOption{WithTombstone(o.Tombstone)}
	}
	return nil
}

// ActionOp is what a store does on behalf of a dropped connection.
type ActionOp string

const (
	ActionDelete ActionOp = "delete"
	ActionSet    ActionOp = "set"
)

// DisconnectAction is registered ahead of time and executed by the store if
// the connection drops without a clean close.
type DisconnectAction struct {
	Op             ActionOp        `json:"op"`
	Value          json.RawMessage `json:"value,omitempty"`
	TimestampField string          `json:"timestampField,omitempty"`
}

func DeleteOnDisconnect() DisconnectAction {
	return DisconnectAction{Op: ActionDelete}
}

func SetOnDisconnect(value json.RawMessage) DisconnectAction {
	return DisconnectAction{Op: ActionSet, Value: value}
}

func (a DisconnectAction) Validate() error {
	switch a.Op {
	case ActionDelete:
		return nil
	case ActionSet:
		if !json.Valid(a.Value) {
			return fmt.Errorf("%w: on-disconnect set value", ErrInvalidValue)
		}
		return nil
	}
	return fmt.Errorf("store: unknown on-disconnect action %q", a.Op)
}

// Subscription streams changes under a prefix until closed.
type Subscription struct {
	C <-chan Change

	close func()
	once  sync.Once
}

func NewSubscription(c <-chan Change, closeFn func()) *Subscription {
	return &Subscription{C: c, close: closeFn}
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.close != nil {
			s.close()
		}
	})
}

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrTombstoned),
		errors.Is(err, ErrInvalidPath),
		errors.Is(err, ErrInvalidValue),
		errors.Is(err, ErrClosed),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
