package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/TURahim/collab-canvas-sub001/internal/auth"
	"github.com/TURahim/collab-canvas-sub001/internal/config"
	"github.com/TURahim/collab-canvas-sub001/internal/middleware"
	"github.com/TURahim/collab-canvas-sub001/internal/session"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

const dropTimeout = 5 * time.Second

// SyncWSHandler serves the remote store protocol on /ws/rooms/:roomId. Each
// socket is bound to one room and one participant; a socket that ends
// without a "bye" frame runs its on-disconnect actions.
type SyncWSHandler struct {
	backend        store.Backend
	hub            *RoomHub
	policy         *Policy
	jwtManager     *auth.JWTManager
	cfg            config.WebSocketConfig
	allowAnonymous bool
	logger         *zap.Logger
}

// NewSyncWSHandler SyncWSHandler 생성
func NewSyncWSHandler(
	backend store.Backend,
	hub *RoomHub,
	policy *Policy,
	jwtManager *auth.JWTManager,
	cfg config.WebSocketConfig,
	allowAnonymous bool,
	logger *zap.Logger,
) *SyncWSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncWSHandler{
		backend:        backend,
		hub:            hub,
		policy:         policy,
		jwtManager:     jwtManager,
		cfg:            cfg,
		allowAnonymous: allowAnonymous,
		logger:         logger.Named("sync-ws"),
	}
}

// Upgrade authenticates the caller before the upgrade. It runs after
// RoomMiddleware.RequireRoom, which has already vetted :roomId.
func (h *SyncWSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	id, err := auth.Resolve(c, h.jwtManager, h.allowAnonymous)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	c.Locals(auth.LocalsIdentity, id)
	return c.Next()
}

// Handler wraps HandleWebSocket with the configured buffer sizes.
func (h *SyncWSHandler) Handler() fiber.Handler {
	return websocket.New(h.HandleWebSocket, websocket.Config{
		HandshakeTimeout: h.cfg.HandshakeTimeout,
		ReadBufferSize:   h.cfg.ReadBufferSize,
		WriteBufferSize:  h.cfg.WriteBufferSize,
	})
}

// HandleWebSocket WebSocket 연결 처리
func (h *SyncWSHandler) HandleWebSocket(c *websocket.Conn) {
	// 패닉 복구 - 서버 크래시 방지
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("sync websocket panic", zap.Any("panic", r))
		}
	}()

	id, ok1 := auth.IdentityFrom(c.Locals(auth.LocalsIdentity))
	roomID, ok2 := c.Locals(middleware.LocalsRoomID).(string)
	if !ok1 || !ok2 {
		c.WriteJSON(store.ReplyTo(0, fmt.Errorf("%w: invalid session", store.ErrPermissionDenied)))
		c.Close()
		return
	}

	sess := session.New(roomID, id, store.NewConn(h.backend))
	logger := h.logger.With(
		zap.String("room", roomID),
		zap.String("participant", id.ParticipantID),
		zap.String("conn", sess.ID))

	if err := h.hub.Join(sess.Context(), sess); err != nil {
		logger.Error("join failed", zap.Error(err))
		c.WriteJSON(store.ReplyTo(0, err))
		sess.Close(context.Background(), true)
		c.Close()
		return
	}
	logger.Info("connected", zap.Bool("anonymous", id.Anonymous))

	hello, _ := json.Marshal(store.Hello{
		ConnID:        sess.ID,
		RoomID:        roomID,
		ParticipantID: id.ParticipantID,
		DisplayName:   id.DisplayName,
		Color:         id.Color,
	})
	sess.Send(store.Frame{Op: store.OpHello, Value: hello})

	writerDone := make(chan struct{})
	go h.writeLoop(c, sess, logger, writerDone)

	// a session closed from outside (server shutdown) ends the read loop
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		<-sess.Context().Done()
		c.Close()
	}()

	if h.cfg.MaxMessageSize > 0 {
		c.SetReadLimit(h.cfg.MaxMessageSize)
	}

	// 메시지 수신 루프
	clean := false
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read ended", zap.Error(err))
			}
			break
		}

		var f store.Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			sess.Send(store.ReplyTo(0, fmt.Errorf("%w: %v", store.ErrInvalidValue, err)))
			continue
		}
		if f.Op == store.OpBye {
			clean = true
			break
		}
		sess.Received()
		h.dispatch(sess, f)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
	defer cancel()
	if err := sess.Close(ctx, clean); err != nil {
		logger.Warn("on-disconnect actions failed", zap.Error(err))
	}
	h.hub.Leave(ctx, sess)
	<-writerDone
	<-watchDone

	in, out := sess.Stats()
	logger.Info("disconnected", zap.Bool("clean", clean), zap.Uint64("frames_in", in), zap.Uint64("frames_out", out))
}

// writeLoop is the only writer on c.
func (h *SyncWSHandler) writeLoop(c *websocket.Conn, sess *session.Session, logger *zap.Logger, done chan<- struct{}) {
	defer close(done)

	failed := false
	for f := range sess.Outbound() {
		if failed {
			continue
		}
		if h.cfg.WriteTimeout > 0 {
			c.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		}
		if err := c.WriteJSON(f); err != nil {
			logger.Debug("write failed", zap.Error(err))
			failed = true
			// unblocks the read loop
			c.Close()
		}
	}
}

func (h *SyncWSHandler) dispatch(sess *session.Session, f store.Frame) {
	ctx := sess.Context()
	conn := sess.Store()
	self := sess.Identity.ParticipantID

	switch f.Op {
	case store.OpPut:
		if err := h.policy.CanPut(sess.RoomID, self, f.Path, f.Value); err != nil {
			sess.Send(store.ReplyTo(f.ID, err))
			return
		}
		ts, err := conn.Put(ctx, f.Path, f.Value, f.PutOptions()...)
		reply := store.ReplyTo(f.ID, err)
		reply.Timestamp = ts
		sess.Send(reply)

	case store.OpGet:
		if err := h.policy.CanRead(sess.RoomID, f.Path); err != nil {
			sess.Send(store.ReplyTo(f.ID, err))
			return
		}
		value, err := conn.Get(ctx, f.Path)
		reply := store.ReplyTo(f.ID, err)
		reply.Value = value
		sess.Send(reply)

	case store.OpDelete:
		if err := h.policy.CanDelete(ctx, sess.RoomID, self, f.Path); err != nil {
			sess.Send(store.ReplyTo(f.ID, err))
			return
		}
		sess.Send(store.ReplyTo(f.ID, conn.Delete(ctx, f.Path, f.DeleteOptions()...)))

	case store.OpSubscribe:
		if err := h.policy.CanSubscribe(sess.RoomID, f.Path); err != nil {
			sess.Send(store.ReplyTo(f.ID, err))
			return
		}
		sub, err := conn.Subscribe(ctx, f.Path)
		if err != nil {
			sess.Send(store.ReplyTo(f.ID, err))
			return
		}
		if err := sess.AddSubscription(f.ID, sub); err != nil {
			sub.Close()
			sess.Send(store.ReplyTo(f.ID, err))
			return
		}
		// the reply is queued ahead of the first change
		sess.Send(store.ReplyTo(f.ID, nil))
		go forward(sess, f.ID, sub)

	case store.OpUnsubscribe:
		sess.RemoveSubscription(f.Sub)
		if f.ID != 0 {
			sess.Send(store.ReplyTo(f.ID, nil))
		}

	case store.OpOnDisconnect:
		if f.Action == nil {
			sess.Send(store.ReplyTo(f.ID, fmt.Errorf("%w: missing action", store.ErrInvalidValue)))
			return
		}
		if err := h.policy.CanRegister(sess.RoomID, self, f.Path, *f.Action); err != nil {
			sess.Send(store.ReplyTo(f.ID, err))
			return
		}
		sess.Send(store.ReplyTo(f.ID, conn.OnDisconnect(ctx, f.Path, *f.Action)))

	case store.OpCancelOnDisconnect:
		if err := h.policy.CanRead(sess.RoomID, f.Path); err != nil {
			sess.Send(store.ReplyTo(f.ID, err))
			return
		}
		sess.Send(store.ReplyTo(f.ID, conn.CancelOnDisconnect(ctx, f.Path)))

	default:
		sess.Send(store.ReplyTo(f.ID, fmt.Errorf("%w: unknown op %q", store.ErrInvalidValue, f.Op)))
	}
}

func forward(sess *session.Session, id uint64, sub *store.Subscription) {
	for change := range sub.C {
		change := change
		if !sess.Send(store.Frame{Op: store.OpChange, Sub: id, Change: &change}) {
			return
		}
	}
}
