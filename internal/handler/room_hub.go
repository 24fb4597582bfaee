package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TURahim/collab-canvas-sub001/internal/session"
)

// =============================================================================
// Room Hub - 룸 단위 연결 관리
// =============================================================================

// RoomLifecycle is told when a room gains its first connection and loses
// its last one on this process.
type RoomLifecycle interface {
	Open(ctx context.Context, roomID string) error
	Close(ctx context.Context, roomID string) error
}

// RoomHub tracks the rooms with live connections on this process.
type RoomHub struct {
	rooms     map[string]*Room
	mu        sync.RWMutex
	lifecycle RoomLifecycle
	logger    *zap.Logger
}

// Room is one document with its connected sessions.
type Room struct {
	ID        string
	CreatedAt time.Time
	sessions  map[string]*session.Session
}

// RoomStats summarises a room for the REST listing.
type RoomStats struct {
	ID           string    `json:"id"`
	Connections  int       `json:"connections"`
	Participants []string  `json:"participants"`
	OpenedAt     time.Time `json:"opened_at"`
}

// NewRoomHub creates a hub. lifecycle may be nil.
func NewRoomHub(lifecycle RoomLifecycle, logger *zap.Logger) *RoomHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomHub{
		rooms:     make(map[string]*Room),
		lifecycle: lifecycle,
		logger:    logger.Named("hub"),
	}
}

// Join adds sess to its room, opening the room first if needed.
func (h *RoomHub) Join(ctx context.Context, sess *session.Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[sess.RoomID]
	if !exists {
		if h.lifecycle != nil {
			if err := h.lifecycle.Open(ctx, sess.RoomID); err != nil {
				return fmt.Errorf("open room %s: %w", sess.RoomID, err)
			}
		}
		room = &Room{
			ID:        sess.RoomID,
			CreatedAt: time.Now(),
			sessions:  make(map[string]*session.Session),
		}
		h.rooms[sess.RoomID] = room
		h.logger.Info("room opened", zap.String("room", room.ID))
	}

	room.sessions[sess.ID] = sess
	h.logger.Debug("session joined",
		zap.String("room", room.ID),
		zap.String("participant", sess.Identity.ParticipantID),
		zap.Int("connections", len(room.sessions)))
	return nil
}

// Leave removes sess and closes the room once it is empty.
func (h *RoomHub) Leave(ctx context.Context, sess *session.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[sess.RoomID]
	if !exists {
		return
	}
	delete(room.sessions, sess.ID)
	if len(room.sessions) > 0 {
		return
	}

	delete(h.rooms, room.ID)
	if h.lifecycle != nil {
		if err := h.lifecycle.Close(ctx, room.ID); err != nil {
			h.logger.Warn("close room failed", zap.String("room", room.ID), zap.Error(err))
		}
	}
	h.logger.Info("room closed", zap.String("room", room.ID))
}

// ActiveRooms returns the ids of rooms with connections, sorted.
func (h *RoomHub) ActiveRooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats lists every active room.
func (h *RoomHub) Stats() []RoomStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := make([]RoomStats, 0, len(h.rooms))
	for _, room := range h.rooms {
		seen := make(map[string]bool)
		participants := make([]string, 0, len(room.sessions))
		for _, s := range room.sessions {
			if pid := s.Identity.ParticipantID; !seen[pid] {
				seen[pid] = true
				participants = append(participants, pid)
			}
		}
		sort.Strings(participants)
		stats = append(stats, RoomStats{
			ID:           room.ID,
			Connections:  len(room.sessions),
			Participants: participants,
			OpenedAt:     room.CreatedAt,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	return stats
}

// Shutdown drops every session, as if their sockets had died, so their
// on-disconnect actions run.
func (h *RoomHub) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	var sessions []*session.Session
	for _, room := range h.rooms {
		for _, s := range room.sessions {
			sessions = append(sessions, s)
		}
	}
	h.mu.RUnlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx, false); err != nil {
			errs = append(errs, err)
		}
		h.Leave(ctx, s)
	}
	return errors.Join(errs...)
}
