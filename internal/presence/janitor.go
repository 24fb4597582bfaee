// Package presence removes presence, cursor and drag records that their
// owners stopped refreshing, using the store clock as the reference.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

// RoomLister reports the rooms this process currently serves.
type RoomLister interface {
	ActiveRooms() []string
}

// Janitor sweeps every active room on an interval.
type Janitor struct {
	backend      store.Backend
	rooms        RoomLister
	staleTimeout time.Duration
	dragTTL      time.Duration
	interval     time.Duration
	clock        clock.Clock
	logger       *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Report counts what one sweep removed.
type Report struct {
	Participants int
	Cursors      int
	Drags        int
}

func (r Report) Total() int {
	return r.Participants + r.Cursors + r.Drags
}

func NewJanitor(backend store.Backend, rooms RoomLister, staleTimeout, dragTTL, interval time.Duration, clk clock.Clock, logger *zap.Logger) *Janitor {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		backend:      backend,
		rooms:        rooms,
		staleTimeout: staleTimeout,
		dragTTL:      dragTTL,
		interval:     interval,
		clock:        clk,
		logger:       logger.Named("janitor"),
		stop:         make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop.
func (j *Janitor) Start() {
	ticker := j.clock.Ticker(j.interval)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-j.stop:
				return
			case <-ticker.C:
				j.SweepAll(context.Background())
			}
		}
	}()
}

func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
	j.wg.Wait()
}

// SweepAll sweeps every active room, logging failures.
func (j *Janitor) SweepAll(ctx context.Context) Report {
	var total Report
	for _, roomID := range j.rooms.ActiveRooms() {
		r, err := j.SweepRoom(ctx, roomID)
		if err != nil {
			j.logger.Warn("sweep failed", zap.String("room", roomID), zap.Error(err))
		}
		total.Participants += r.Participants
		total.Cursors += r.Cursors
		total.Drags += r.Drags
	}
	if total.Total() > 0 {
		j.logger.Info("swept stale records",
			zap.Int("participants", total.Participants),
			zap.Int("cursors", total.Cursors),
			zap.Int("drags", total.Drags))
	}
	return total
}

// SweepRoom deletes presence records whose lastHeartbeat is older than the
// stale timeout, cursors without a live presence record and drag states
// whose lastUpdate is older than the drag TTL.
func (j *Janitor) SweepRoom(ctx context.Context, roomID string) (Report, error) {
	var report Report

	now, err := j.backend.Now(ctx)
	if err != nil {
		return report, err
	}

	presence, err := j.backend.List(ctx, store.CollectionPrefix(roomID, model.KindPresence))
	if err != nil {
		return report, err
	}
	live := make(map[string]bool, len(presence))
	var errs []error
	for _, e := range presence {
		parsed, err := store.ParsePath(e.Path)
		if err != nil {
			continue
		}
		p, err := model.DecodeParticipant(e.Value)
		if err == nil && now-p.LastHeartbeat < j.staleTimeout.Milliseconds() {
			live[parsed.ID] = true
			continue
		}
		if err := j.backend.Delete(ctx, e.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Participants++
		j.logger.Debug("removed stale participant", zap.String("room", roomID), zap.String("participant", parsed.ID))
	}

	cursors, err := j.backend.List(ctx, store.CollectionPrefix(roomID, model.KindCursors))
	if err != nil {
		return report, err
	}
	for _, e := range cursors {
		parsed, err := store.ParsePath(e.Path)
		if err != nil || live[parsed.ID] {
			continue
		}
		if err := j.backend.Delete(ctx, e.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Cursors++
	}

	drags, err := j.backend.List(ctx, store.CollectionPrefix(roomID, model.KindDragging))
	if err != nil {
		return report, err
	}
	for _, e := range drags {
		d, err := model.DecodeDragState(e.Value)
		if err == nil && now-d.LastUpdate < j.dragTTL.Milliseconds() {
			continue
		}
		if err := j.backend.Delete(ctx, e.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Drags++
	}

	return report, errors.Join(errs...)
}
