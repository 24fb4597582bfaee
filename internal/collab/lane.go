package collab

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/TURahim/collab-canvas-sub001/internal/mailbox"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

// writeOp is one store call queued on a lane.
type writeOp struct {
	name string
	path string
	run  func(ctx context.Context) error

	barrier chan struct{}
}

// lane runs store writes one at a time in submission order, retrying
// transient failures. Keeping a delete on the same lane as earlier puts to
// the same object means the delete always lands last.
type lane struct {
	name   string
	cfg    Config
	logger *zap.Logger
	onFail func(op writeOp, err error)

	box    *mailbox.Mailbox[writeOp]
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newLane(name string, cfg Config, logger *zap.Logger, onFail func(writeOp, error)) *lane {
	ctx, cancel := context.WithCancel(context.Background())
	l := &lane{
		name:   name,
		cfg:    cfg,
		logger: logger.With(zap.String("lane", name)),
		onFail: onFail,
		box:    mailbox.New[writeOp](),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *lane) submit(op writeOp) bool {
	return l.box.Push(op)
}

// drain waits until everything submitted so far has run.
func (l *lane) drain(ctx context.Context) error {
	barrier := make(chan struct{})
	if !l.box.Push(writeOp{barrier: barrier}) {
		return ErrClosed
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop abandons queued writes and waits for the lane goroutine.
func (l *lane) stop() {
	l.cancel()
	l.box.Close()
	<-l.done
}

func (l *lane) run() {
	defer close(l.done)

	for op := range l.box.C() {
		if op.barrier != nil {
			close(op.barrier)
			continue
		}
		if err := retry(l.ctx, l.cfg, op.run); err != nil {
			l.onFail(op, err)
			continue
		}
		l.logger.Debug("write done", zap.String("op", op.name), zap.String("path", op.path))
	}
}

// retry runs fn with exponential backoff. Errors the store marks as final
// are returned at once.
func retry(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryInitial
	b.MaxInterval = cfg.RetryMax
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.RetryAttempts-1)), ctx)
	return backoff.Retry(func() error {
		err := fn(ctx)
		if err != nil && !store.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
