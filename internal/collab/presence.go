package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

// PresenceState is the lifecycle of the local participant.
type PresenceState int

const (
	Joining PresenceState = iota
	Active
	Departed
)

func (s PresenceState) String() string {
	switch s {
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Departed:
		return "departed"
	}
	return "unknown"
}

// Presence writes the local participant's liveness record and keeps the
// room's participant list as seen from the store.
type Presence struct {
	st     store.Store
	roomID string
	self   model.Participant
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger

	mu    sync.Mutex
	state PresenceState
	// offset is server milliseconds minus local milliseconds, learned from
	// the timestamps the store assigns to our own heartbeats.
	offset int64
	peers  map[string]model.Participant
}

func NewPresence(st store.Store, roomID string, self model.Participant, cfg Config, clk clock.Clock, logger *zap.Logger) *Presence {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.WithDefaults()
	return &Presence{
		st:     st,
		roomID: roomID,
		self:   self,
		cfg:    cfg,
		clock:  clk,
		logger: logger.Named("presence"),
		state:  Joining,
		peers:  make(map[string]model.Participant),
	}
}

func (p *Presence) State() PresenceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Presence) presencePath() string {
	return store.PresencePath(p.roomID, p.self.ParticipantID)
}

func (p *Presence) cursorPath() string {
	return store.CursorPath(p.roomID, p.self.ParticipantID)
}

// Join registers the disconnect cleanup and writes the presence record.
// The cleanup goes first so a drop right after the write is still covered.
func (p *Presence) Join(ctx context.Context) error {
	for _, path := range []string{p.presencePath(), p.cursorPath()} {
		path := path
		err := retry(ctx, p.cfg, func(ctx context.Context) error {
			return p.st.OnDisconnect(ctx, path, store.DeleteOnDisconnect())
		})
		if err != nil {
			return fmt.Errorf("register disconnect cleanup %s: %w", path, err)
		}
	}

	if err := p.write(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	p.state = Active
	p.mu.Unlock()

	p.logger.Info("joined", zap.String("room", p.roomID), zap.String("participant", p.self.ParticipantID))
	return nil
}

// Heartbeat rewrites the whole record, so it also restores a record that a
// peer or the server removed while we were unreachable.
func (p *Presence) Heartbeat(ctx context.Context) error {
	if p.State() != Active {
		return nil
	}
	return p.write(ctx)
}

func (p *Presence) write(ctx context.Context) error {
	rec := p.self
	rec.Online = true
	rec.Cursor = nil
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}

	var ts int64
	err = retry(ctx, p.cfg, func(ctx context.Context) error {
		var err error
		ts, err = p.st.Put(ctx, p.presencePath(), body,
			store.WithServerTimestamp(model.FieldLastHeartbeat),
			store.WithTTL(p.cfg.StaleTimeout))
		return err
	})
	if err != nil {
		return fmt.Errorf("write presence: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = ts - p.clock.Now().UnixMilli()
	rec.LastHeartbeat = ts
	if cur, ok := p.peers[rec.ParticipantID]; !ok || cur.LastHeartbeat < ts {
		p.peers[rec.ParticipantID] = rec
	}
	return nil
}

// Leave cancels the disconnect cleanup and deletes the records itself.
func (p *Presence) Leave(ctx context.Context) error {
	p.mu.Lock()
	if p.state == Departed {
		p.mu.Unlock()
		return nil
	}
	p.state = Departed
	delete(p.peers, p.self.ParticipantID)
	p.mu.Unlock()

	var errs []error
	for _, path := range []string{p.presencePath(), p.cursorPath()} {
		path := path
		if err := p.st.CancelOnDisconnect(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("cancel disconnect cleanup %s: %w", path, err))
		}
		err := retry(ctx, p.cfg, func(ctx context.Context) error {
			return p.st.Delete(ctx, path)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", path, err))
		}
	}

	p.logger.Info("left", zap.String("room", p.roomID), zap.String("participant", p.self.ParticipantID))
	return errors.Join(errs...)
}

// Observe applies a remote presence record. joined reports a participant
// not seen before; changed reports a difference worth showing. Records with
// an older heartbeat than the one held are ignored.
func (p *Presence) Observe(rec model.Participant) (joined, changed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rec.ParticipantID == p.self.ParticipantID && p.state == Departed {
		return false, false
	}
	cur, ok := p.peers[rec.ParticipantID]
	if ok && rec.LastHeartbeat < cur.LastHeartbeat {
		return false, false
	}
	p.peers[rec.ParticipantID] = rec
	if !ok {
		return true, true
	}
	return false, cur.DisplayName != rec.DisplayName || cur.Color != rec.Color || cur.Online != rec.Online
}

// Remove drops a participant whose record was deleted.
func (p *Presence) Remove(participantID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.peers[participantID]
	delete(p.peers, participantID)
	return ok
}

// Sweep removes peers whose last heartbeat, by the estimated store clock, is
// older than the stale timeout. The local participant is never swept.
func (p *Presence) Sweep() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now().UnixMilli() + p.offset
	limit := p.cfg.StaleTimeout.Milliseconds()

	var stale []string
	for id, rec := range p.peers {
		if id == p.self.ParticipantID {
			continue
		}
		if now-rec.LastHeartbeat >= limit {
			stale = append(stale, id)
			delete(p.peers, id)
		}
	}
	sort.Strings(stale)
	return stale
}

// Participants lists everyone currently present, ordered by id.
func (p *Presence) Participants() []model.Participant {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.Participant, 0, len(p.peers))
	for _, rec := range p.peers {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}
