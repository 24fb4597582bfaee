package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TURahim/collab-canvas-sub001/internal/mailbox"
	"github.com/TURahim/collab-canvas-sub001/internal/model"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

const (
	cursorKey     = "cursor"
	dragKeyPrefix = "drag/"
)

type pendingObject struct {
	obj   model.Object
	token uint64
}

type remoteDrag struct {
	state model.DragState
	seen  time.Time
}

// Session synchronises one participant with one room. Local edits go out
// through the batcher or throttler; remote changes come back as Events.
type Session struct {
	st     store.Store
	roomID string
	self   model.Participant
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger

	presence  *Presence
	guard     *LoopGuard
	batcher   *Batcher[pendingObject]
	throttle  *Throttler[Point]
	durable   *lane
	ephemeral *lane
	events    *mailbox.Mailbox[Event]

	mu          sync.Mutex
	replica     *Replica
	interp      *Interpolator
	cursors     map[string]model.Cursor
	drags       map[string]struct{}
	remoteDrags map[string]remoteDrag
	closing     bool
	closed      bool

	subs   []*store.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Open joins the room and subscribes to it. It fails if the store rejects
// the join, for instance because the room does not exist.
func Open(ctx context.Context, st store.Store, roomID string, self model.Participant, cfg Config, opts ...Option) (*Session, error) {
	if !store.ValidID(roomID) {
		return nil, fmt.Errorf("%w: room %q", ErrInvalidID, roomID)
	}
	if !store.ValidID(self.ParticipantID) {
		return nil, fmt.Errorf("%w: participant %q", ErrInvalidID, self.ParticipantID)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	o := resolveOptions(opts)

	logger := o.logger.Named("collab").With(
		zap.String("room", roomID),
		zap.String("participant", self.ParticipantID),
	)

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		st:          st,
		roomID:      roomID,
		self:        self,
		cfg:         cfg,
		clock:       o.clock,
		logger:      logger,
		guard:       NewLoopGuard(cfg.PendingGrace, o.clock),
		events:      mailbox.New[Event](),
		replica:     NewReplica(cfg.TombstoneTTL, o.clock),
		interp:      NewInterpolator(cfg.Interpolation, cfg.MaxStep, cfg.MoveThreshold),
		cursors:     make(map[string]model.Cursor),
		drags:       make(map[string]struct{}),
		remoteDrags: make(map[string]remoteDrag),
		ctx:         sctx,
		cancel:      cancel,
	}
	s.presence = NewPresence(st, roomID, self, cfg, o.clock, logger)
	s.batcher = NewBatcher(cfg.DebounceInterval, s.flushObject)
	s.throttle = NewThrottler(cfg.ThrottleInterval, o.clock, s.sendThrottled)
	s.durable = newLane("durable", cfg, logger, s.laneFailed)
	s.ephemeral = newLane("ephemeral", cfg, logger, s.laneFailed)

	if err := s.presence.Join(ctx); err != nil {
		s.abort()
		return nil, fmt.Errorf("join room %s: %w", roomID, err)
	}

	kinds := []model.Kind{model.KindObjects, model.KindCursors, model.KindDragging, model.KindPresence}
	for _, kind := range kinds {
		sub, err := st.Subscribe(ctx, store.CollectionPrefix(roomID, kind))
		if err != nil {
			if leaveErr := s.presence.Leave(ctx); leaveErr != nil {
				logger.Debug("leave after failed open", zap.Error(leaveErr))
			}
			s.abort()
			return nil, fmt.Errorf("subscribe %s: %w", kind, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.wg.Add(2)
	go s.run(s.subs[0], s.subs[1], s.subs[2], s.subs[3])
	go s.heartbeatLoop()

	logger.Info("session opened")
	return s, nil
}

// abort releases what Open acquired before it failed.
func (s *Session) abort() {
	for _, sub := range s.subs {
		sub.Close()
	}
	s.cancel()
	s.throttle.Stop()
	s.batcher.Stop()
	s.guard.Stop()
	s.durable.stop()
	s.ephemeral.stop()
	s.events.Close()
}

func (s *Session) RoomID() string { return s.roomID }

func (s *Session) Self() model.Participant { return s.self }

// Events delivers remote changes in the order they were applied. It is
// closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events.C()
}

// CreateObject adds an object, generating an id when none is set. The
// write goes out once edits to the object pause.
func (s *Session) CreateObject(obj model.Object) (model.Object, error) {
	if obj.ObjectID == "" {
		obj.ObjectID = uuid.NewString()
	}
	if !store.ValidID(obj.ObjectID) {
		return model.Object{}, fmt.Errorf("%w: object %q", ErrInvalidID, obj.ObjectID)
	}
	if obj.Type == "" {
		return model.Object{}, fmt.Errorf("%w: object %s missing type", ErrMalformedRecord, obj.ObjectID)
	}
	if err := checkProps(obj.Props); err != nil {
		return model.Object{}, fmt.Errorf("%w: object %s", err, obj.ObjectID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return model.Object{}, ErrClosed
	}
	if s.replica.Tombstoned(obj.ObjectID) {
		return model.Object{}, ErrObjectDeleted
	}

	obj.CreatedBy = s.self.ParticipantID
	obj.LastModified = 0
	if cur, ok := s.replica.Get(obj.ObjectID); ok {
		obj.CreatedBy = cur.CreatedBy
		obj.LastModified = cur.LastModified
	}
	obj.LastModifiedBy = s.self.ParticipantID

	s.stageLocked(obj)
	return obj.Clone(), nil
}

// UpdateObject replaces an object's props.
func (s *Session) UpdateObject(objectID string, props json.RawMessage) (model.Object, error) {
	if err := checkProps(props); err != nil {
		return model.Object{}, fmt.Errorf("%w: object %s", err, objectID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return model.Object{}, ErrClosed
	}
	if s.replica.Tombstoned(objectID) {
		return model.Object{}, ErrObjectDeleted
	}
	obj, ok := s.replica.Get(objectID)
	if !ok {
		return model.Object{}, ErrObjectNotFound
	}

	obj.Props = append(json.RawMessage(nil), props...)
	obj.LastModifiedBy = s.self.ParticipantID

	s.stageLocked(obj)
	return obj.Clone(), nil
}

// checkProps accepts empty props or a single JSON value.
func checkProps(props json.RawMessage) error {
	if len(props) > 0 && !json.Valid(props) {
		return fmt.Errorf("%w: props are not valid JSON", ErrMalformedRecord)
	}
	return nil
}

// stageLocked applies obj optimistically, marks it pending and schedules
// its write, in that order. Caller holds mu.
func (s *Session) stageLocked(obj model.Object) {
	s.replica.PutLocal(obj)
	token := s.guard.Mark(obj)
	s.batcher.Schedule(obj.ObjectID, pendingObject{obj: obj.Clone(), token: token})
}

// DeleteObject removes an object at once, skipping the batcher. Any queued
// edit for it is dropped and the store keeps a tombstone so no late write
// brings it back.
func (s *Session) DeleteObject(objectID string) error {
	if !store.ValidID(objectID) {
		return fmt.Errorf("%w: object %q", ErrInvalidID, objectID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return ErrClosed
	}

	s.batcher.Cancel(objectID)
	s.guard.Forget(objectID)
	s.replica.Remove(objectID)
	if _, dragging := s.drags[objectID]; dragging {
		s.endDragLocked(objectID)
	}

	path := store.ObjectPath(s.roomID, objectID)
	s.durable.submit(writeOp{
		name: "delete",
		path: path,
		run: func(ctx context.Context) error {
			return s.st.Delete(ctx, path, store.WithTombstone(s.cfg.TombstoneTTL))
		},
	})
	return nil
}

// flushObject runs when an object's edits have gone quiet.
func (s *Session) flushObject(objectID string, p pendingObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.replica.Tombstoned(objectID) {
		return
	}

	path := store.ObjectPath(s.roomID, objectID)
	body, err := json.Marshal(p.obj)
	if err != nil {
		s.logger.Error("encode object", zap.String("object", objectID), zap.Error(err))
		s.guard.Forget(objectID)
		s.events.Push(Warning{Op: "put", Path: path, Err: fmt.Errorf("%w: %v", ErrMalformedRecord, err)})
		return
	}
	s.durable.submit(writeOp{
		name: "put",
		path: path,
		run: func(ctx context.Context) error {
			ts, err := s.st.Put(ctx, path, body, store.WithServerTimestamp(model.FieldLastModified))
			if err != nil {
				return err
			}
			s.guard.Confirm(objectID, p.token, ts)
			return nil
		},
	})
}

// MoveCursor publishes the local cursor, throttled.
func (s *Session) MoveCursor(x, y float64) error {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return ErrClosed
	}
	s.throttle.Send(cursorKey, Point{X: x, Y: y})
	return nil
}

// StartDrag announces a drag of an existing object. The drag record is
// removed by the store if this client drops mid-gesture.
func (s *Session) StartDrag(objectID string, x, y float64) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.replica.Get(objectID); !ok {
		s.mu.Unlock()
		return ErrObjectNotFound
	}
	s.drags[objectID] = struct{}{}
	path := store.DraggingPath(s.roomID, objectID)
	s.ephemeral.submit(writeOp{
		name: "onDisconnect",
		path: path,
		run: func(ctx context.Context) error {
			return s.st.OnDisconnect(ctx, path, store.DeleteOnDisconnect())
		},
	})
	s.mu.Unlock()

	s.throttle.Send(dragKeyPrefix+objectID, Point{X: x, Y: y})
	return nil
}

func (s *Session) UpdateDrag(objectID string, x, y float64) error {
	s.mu.Lock()
	_, ok := s.drags[objectID]
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return ErrClosed
	}
	if !ok {
		return ErrDragNotActive
	}
	s.throttle.Send(dragKeyPrefix+objectID, Point{X: x, Y: y})
	return nil
}

// EndDrag clears the drag record explicitly. The final position should be
// committed with UpdateObject.
func (s *Session) EndDrag(objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drags[objectID]; !ok {
		return ErrDragNotActive
	}
	s.endDragLocked(objectID)
	return nil
}

// Caller holds mu.
func (s *Session) endDragLocked(objectID string) {
	delete(s.drags, objectID)
	s.throttle.Cancel(dragKeyPrefix + objectID)

	path := store.DraggingPath(s.roomID, objectID)
	s.ephemeral.submit(writeOp{
		name: "delete",
		path: path,
		run: func(ctx context.Context) error {
			return s.st.Delete(ctx, path)
		},
	})
	s.ephemeral.submit(writeOp{
		name: "cancelOnDisconnect",
		path: path,
		run: func(ctx context.Context) error {
			return s.st.CancelOnDisconnect(ctx, path)
		},
	})
}

// sendThrottled is the throttler's output. It may run on a caller's
// goroutine or a timer's, never with mu held.
func (s *Session) sendThrottled(key string, p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if key == cursorKey {
		if s.closing {
			return
		}
		path := store.CursorPath(s.roomID, s.self.ParticipantID)
		body, _ := json.Marshal(model.Cursor{X: p.X, Y: p.Y})
		s.ephemeral.submit(writeOp{
			name: "put",
			path: path,
			run: func(ctx context.Context) error {
				_, err := s.st.Put(ctx, path, body)
				return err
			},
		})
		return
	}

	objectID := strings.TrimPrefix(key, dragKeyPrefix)
	if _, ok := s.drags[objectID]; !ok {
		return
	}
	path := store.DraggingPath(s.roomID, objectID)
	body, _ := json.Marshal(model.DragState{
		ObjectID:            objectID,
		X:                   p.X,
		Y:                   p.Y,
		OriginParticipantID: s.self.ParticipantID,
	})
	s.ephemeral.submit(writeOp{
		name: "put",
		path: path,
		run: func(ctx context.Context) error {
			_, err := s.st.Put(ctx, path, body, store.WithServerTimestamp(model.FieldLastUpdate))
			return err
		},
	})
}

func (s *Session) Object(objectID string) (model.Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replica.Get(objectID)
}

// Objects returns the local view of every object, ordered by id.
func (s *Session) Objects() []model.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replica.All()
}

func (s *Session) Participants() []model.Participant {
	return s.presence.Participants()
}

// Cursors returns the remote participants' cursors.
func (s *Session) Cursors() map[string]model.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Cursor, len(s.cursors))
	for id, c := range s.cursors {
		out[id] = c
	}
	return out
}

// DragPosition returns the displayed position of an object a peer drags.
func (s *Session) DragPosition(objectID string) (Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.remoteDrags[objectID]; !ok {
		return Point{}, false
	}
	return s.interp.Position(objectID)
}

func (s *Session) PresenceState() PresenceState {
	return s.presence.State()
}

// Close flushes queued edits, ends local drags, leaves the room and stops
// every goroutine the session started. The store itself is not closed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.close()
	})
	return s.closeErr
}

func (s *Session) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CloseTimeout)
	defer cancel()

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.throttle.Stop()
	s.batcher.FlushAll()
	s.batcher.Stop()

	s.mu.Lock()
	for objectID := range s.drags {
		s.endDragLocked(objectID)
	}
	s.mu.Unlock()

	var errs []error
	if err := s.durable.drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush object writes: %w", err))
	}
	if err := s.ephemeral.drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush ephemeral writes: %w", err))
	}

	s.cancel()
	s.wg.Wait()

	if err := s.presence.Leave(ctx); err != nil {
		if errors.Is(err, store.ErrPermissionDenied) {
			s.logger.Debug("leave denied during close", zap.Error(err))
		} else {
			errs = append(errs, err)
		}
	}

	for _, sub := range s.subs {
		sub.Close()
	}
	s.durable.stop()
	s.ephemeral.stop()
	s.guard.Stop()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.events.Close()

	s.logger.Info("session closed")
	return errors.Join(errs...)
}

func (s *Session) laneFailed(op writeOp, err error) {
	s.report(op.name, op.path, err)
}

// report turns a dropped write into a Warning unless it is an expected
// consequence of closing or of a delete winning.
func (s *Session) report(op, path string, err error) {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()

	fields := []zap.Field{zap.String("op", op), zap.String("path", path), zap.Error(err)}
	switch {
	case errors.Is(err, context.Canceled):
		s.logger.Debug("write cancelled", fields...)
		return
	case closing && errors.Is(err, store.ErrPermissionDenied):
		s.logger.Debug("permission denied while closing", fields...)
		return
	case errors.Is(err, store.ErrTombstoned):
		s.logger.Debug("write to deleted object dropped", fields...)
		return
	}

	s.logger.Warn("write dropped", fields...)
	s.events.Push(Warning{Op: op, Path: path, Err: err})
}

func (s *Session) heartbeatLoop() {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.presence.Heartbeat(s.ctx); err != nil {
				s.report("heartbeat", s.presence.presencePath(), err)
			}
		}
	}
}

func (s *Session) run(objects, cursors, drags, presence *store.Subscription) {
	defer s.wg.Done()

	sweep := s.clock.Ticker(s.cfg.SweepInterval)
	defer sweep.Stop()
	dragSweep := s.clock.Ticker(s.cfg.DragTTL / 2)
	defer dragSweep.Stop()

	var frames <-chan time.Time
	if s.cfg.Interpolation {
		t := s.clock.Ticker(s.cfg.FrameInterval)
		defer t.Stop()
		frames = t.C
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case c, ok := <-objects.C:
			if !ok {
				s.lost()
				return
			}
			s.handleObject(c)
		case c, ok := <-cursors.C:
			if !ok {
				s.lost()
				return
			}
			s.handleCursor(c)
		case c, ok := <-drags.C:
			if !ok {
				s.lost()
				return
			}
			s.handleDrag(c)
		case c, ok := <-presence.C:
			if !ok {
				s.lost()
				return
			}
			s.handlePresence(c)
		case <-sweep.C:
			s.sweepPeers()
		case <-dragSweep.C:
			s.sweepDrags()
		case <-frames:
			s.advanceFrames()
		}
	}
}

func (s *Session) lost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	s.logger.Warn("store subscription ended")
	s.events.Push(Disconnected{Err: store.ErrConnectionLost})
}

func (s *Session) childID(c store.Change, kind model.Kind) (string, bool) {
	p, err := store.ParsePath(c.Path)
	if err != nil || p.Room != s.roomID || p.Kind != kind {
		s.logger.Debug("ignoring change", zap.String("path", c.Path))
		return "", false
	}
	return p.ID, true
}

func (s *Session) handleObject(c store.Change) {
	id, ok := s.childID(c, model.KindObjects)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Type == store.ChangeRemoved {
		// a delete beats any edit still queued here
		s.batcher.Cancel(id)
		s.guard.Forget(id)
		if _, dragging := s.drags[id]; dragging {
			s.endDragLocked(id)
		}
		if s.replica.Remove(id) {
			s.events.Push(ObjectsChanged{Removed: []string{id}})
		}
		return
	}

	obj, err := model.DecodeObject(c.Value)
	if err != nil || obj.ObjectID != id {
		s.logger.Debug("ignoring malformed object", zap.String("path", c.Path), zap.Error(err))
		return
	}

	var changed bool
	switch verdict := s.guard.Observe(obj); verdict {
	case Echo:
		changed = s.replica.Adopt(obj)
	case StaleEcho:
		return
	case Conflict:
		// the local edit was based on the held version; anything not newer
		// than that is a redelivery
		if cur, ok := s.replica.Get(id); ok && obj.LastModified <= cur.LastModified {
			return
		}
		s.logger.Debug("concurrent edit", zap.String("object", id), zap.String("by", obj.LastModifiedBy))
		changed = s.replica.ApplyRemote(obj)
	default:
		changed = s.replica.ApplyRemote(obj)
	}
	if changed {
		cur, _ := s.replica.Get(id)
		s.events.Push(ObjectsChanged{Upserted: []model.Object{cur}})
	}
}

func (s *Session) handleCursor(c store.Change) {
	id, ok := s.childID(c, model.KindCursors)
	if !ok || id == s.self.ParticipantID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Type == store.ChangeRemoved {
		if _, ok := s.cursors[id]; ok {
			delete(s.cursors, id)
			s.events.Push(CursorsChanged{ParticipantID: id})
		}
		return
	}
	cur, err := model.DecodeCursor(c.Value)
	if err != nil {
		s.logger.Debug("ignoring malformed cursor", zap.String("path", c.Path), zap.Error(err))
		return
	}
	if old, ok := s.cursors[id]; ok && old == cur {
		return
	}
	s.cursors[id] = cur
	s.events.Push(CursorsChanged{ParticipantID: id, Cursor: &cur})
}

func (s *Session) handleDrag(c store.Change) {
	id, ok := s.childID(c, model.KindDragging)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Type == store.ChangeRemoved {
		s.dropRemoteDragLocked(id, false)
		return
	}
	d, err := model.DecodeDragState(c.Value)
	if err != nil || d.ObjectID != id {
		s.logger.Debug("ignoring malformed drag", zap.String("path", c.Path), zap.Error(err))
		return
	}
	if d.OriginParticipantID == s.self.ParticipantID {
		return
	}

	s.remoteDrags[id] = remoteDrag{state: d, seen: s.clock.Now()}
	if pos, moved := s.interp.Push(id, Point{X: d.X, Y: d.Y}); moved {
		s.events.Push(DragMoved{ObjectID: id, ParticipantID: d.OriginParticipantID, Position: pos})
	}
}

// Caller holds mu.
func (s *Session) dropRemoteDragLocked(objectID string, abandoned bool) {
	d, ok := s.remoteDrags[objectID]
	if !ok {
		return
	}
	delete(s.remoteDrags, objectID)
	s.interp.Remove(objectID)
	s.events.Push(DragEnded{
		ObjectID:      objectID,
		ParticipantID: d.state.OriginParticipantID,
		Abandoned:     abandoned,
	})
}

func (s *Session) handlePresence(c store.Change) {
	id, ok := s.childID(c, model.KindPresence)
	if !ok {
		return
	}

	if c.Type == store.ChangeRemoved {
		if id == s.self.ParticipantID {
			// the next heartbeat writes it back
			s.logger.Debug("own presence record removed")
			return
		}
		if s.presence.Remove(id) {
			s.mu.Lock()
			s.departLocked([]string{id})
			s.mu.Unlock()
		}
		return
	}

	rec, err := model.DecodeParticipant(c.Value)
	if err != nil || rec.ParticipantID != id {
		s.logger.Debug("ignoring malformed presence", zap.String("path", c.Path), zap.Error(err))
		return
	}
	joined, changed := s.presence.Observe(rec)
	if !changed || id == s.self.ParticipantID {
		return
	}
	ev := PresenceChanged{Participants: s.presence.Participants()}
	if joined {
		ev.Joined = []string{id}
	}
	s.events.Push(ev)
}

// departLocked drops state belonging to participants that left and reports
// it. Caller holds mu.
func (s *Session) departLocked(ids []string) {
	for _, id := range ids {
		if _, ok := s.cursors[id]; ok {
			delete(s.cursors, id)
			s.events.Push(CursorsChanged{ParticipantID: id})
		}
	}
	s.events.Push(PresenceChanged{Participants: s.presence.Participants(), Left: ids})
}

// sweepPeers removes participants that stopped heartbeating, locally and in
// the store, so peers that missed the disconnect converge too.
func (s *Session) sweepPeers() {
	stale := s.presence.Sweep()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replica.Prune()
	if len(stale) == 0 {
		return
	}
	s.logger.Info("stale participants removed", zap.Strings("participants", stale))
	s.departLocked(stale)

	if s.closing {
		return
	}
	for _, id := range stale {
		for _, path := range []string{store.PresencePath(s.roomID, id), store.CursorPath(s.roomID, id)} {
			path := path
			s.ephemeral.submit(writeOp{
				name: "delete",
				path: path,
				run: func(ctx context.Context) error {
					err := s.st.Delete(ctx, path)
					if errors.Is(err, store.ErrPermissionDenied) {
						return nil
					}
					return err
				},
			})
		}
	}
}

func (s *Session) sweepDrags() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var abandoned []string
	for id, d := range s.remoteDrags {
		if now.Sub(d.seen) >= s.cfg.DragTTL {
			abandoned = append(abandoned, id)
		}
	}
	sort.Strings(abandoned)
	for _, id := range abandoned {
		s.dropRemoteDragLocked(id, true)
	}
}

func (s *Session) advanceFrames() {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := s.interp.Advance()
	if len(moved) == 0 {
		return
	}
	ids := make([]string, 0, len(moved))
	for id := range moved {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.events.Push(DragMoved{
			ObjectID:      id,
			ParticipantID: s.remoteDrags[id].state.OriginParticipantID,
			Position:      moved[id],
		})
	}
}
