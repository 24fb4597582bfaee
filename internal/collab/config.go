package collab

import (
	"errors"
	"time"
)

// Config tunes one Session. Zero fields take the defaults below.
type Config struct {
	// ThrottleInterval caps cursor and drag writes per key.
	ThrottleInterval time.Duration
	// DebounceInterval is the quiet period before an object edit is written.
	DebounceInterval time.Duration
	// PendingGrace bounds how long a self-write suppresses remote updates.
	PendingGrace time.Duration

	HeartbeatInterval time.Duration
	// StaleTimeout removes a peer whose heartbeat is older than this.
	StaleTimeout time.Duration
	// SweepInterval is how often peers and drags are checked for staleness.
	SweepInterval time.Duration
	// DragTTL ends a remote drag that has not been updated for this long.
	DragTTL time.Duration
	// TombstoneTTL keeps deleted object ids from being resurrected.
	TombstoneTTL time.Duration

	Interpolation bool
	FrameInterval time.Duration
	// MaxStep is the largest distance, in pixels, a displayed drag moves per frame.
	MaxStep float64
	// MoveThreshold ignores drag samples closer than this to the current
	// target. A negative value disables it.
	MoveThreshold float64

	RetryAttempts int
	RetryInitial  time.Duration
	RetryMax      time.Duration

	// CloseTimeout bounds the flush performed by Close.
	CloseTimeout time.Duration
}

const (
	DefaultThrottleInterval  = 33 * time.Millisecond
	DefaultDebounceInterval  = 300 * time.Millisecond
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultDragTTL           = 5 * time.Second
	DefaultTombstoneTTL      = 60 * time.Second
	DefaultFrameInterval     = 16 * time.Millisecond
	DefaultMaxStep           = 24
	DefaultMoveThreshold     = 1
	DefaultRetryAttempts     = 5
	DefaultRetryInitial      = 50 * time.Millisecond
	DefaultRetryMax          = 2 * time.Second
	DefaultCloseTimeout      = 5 * time.Second
)

var ErrInvalidConfig = errors.New("collab: invalid config")

// DefaultConfig returns the stock tuning with interpolation enabled.
func DefaultConfig() Config {
	return Config{Interpolation: true}.WithDefaults()
}

// WithDefaults fills every zero field.
func (c Config) WithDefaults() Config {
	if c.ThrottleInterval <= 0 {
		c.ThrottleInterval = DefaultThrottleInterval
	}
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = DefaultDebounceInterval
	}
	if c.PendingGrace <= 0 {
		c.PendingGrace = 2 * c.DebounceInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = c.HeartbeatInterval * 5 / 2
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.HeartbeatInterval / 2
	}
	if c.DragTTL <= 0 {
		c.DragTTL = DefaultDragTTL
	}
	if c.TombstoneTTL <= 0 {
		c.TombstoneTTL = DefaultTombstoneTTL
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	if c.MaxStep <= 0 {
		c.MaxStep = DefaultMaxStep
	}
	if c.MoveThreshold < 0 {
		c.MoveThreshold = 0
	} else if c.MoveThreshold == 0 {
		c.MoveThreshold = DefaultMoveThreshold
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = DefaultRetryInitial
	}
	if c.RetryMax <= 0 {
		c.RetryMax = DefaultRetryMax
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	return c
}

// Validate checks that a silent peer is dropped within three heartbeats.
func (c Config) Validate() error {
	c = c.WithDefaults()
	if c.StaleTimeout+c.SweepInterval > 3*c.HeartbeatInterval {
		return errors.Join(ErrInvalidConfig,
			errors.New("stale timeout plus sweep interval exceeds three heartbeat intervals"))
	}
	if c.StaleTimeout <= c.HeartbeatInterval {
		return errors.Join(ErrInvalidConfig, errors.New("stale timeout must exceed the heartbeat interval"))
	}
	return nil
}
