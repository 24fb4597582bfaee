package collab

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type options struct {
	clock  clock.Clock
	logger *zap.Logger
}

// Option customises a Session.
type Option func(*options)

// WithClock replaces the wall clock used for throttle windows, grace timers
// and the heartbeat and sweep tickers.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func resolveOptions(opts []Option) options {
	o := options{clock: clock.New(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	return o
}
