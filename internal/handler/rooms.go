package handler

import (
	"sort"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/TURahim/collab-canvas-sub001/internal/model"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

// RoomHandler serves read-only snapshots of room state.
type RoomHandler struct {
	backend store.Backend
	hub     *RoomHub
	logger  *zap.Logger
}

// NewRoomHandler RoomHandler 생성
func NewRoomHandler(backend store.Backend, hub *RoomHub, logger *zap.Logger) *RoomHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomHandler{backend: backend, hub: hub, logger: logger.Named("rooms")}
}

// ListRooms 이 프로세스의 활성 룸 목록
func (h *RoomHandler) ListRooms(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"rooms": h.hub.Stats()})
}

// GetObjects 룸의 오브젝트 스냅샷
//
// Malformed records are skipped.
func (h *RoomHandler) GetObjects(c *fiber.Ctx) error {
	roomID := c.Params("roomId")
	if !store.ValidID(roomID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid room id"})
	}

	entries, err := h.backend.List(c.UserContext(), store.CollectionPrefix(roomID, model.KindObjects))
	if err != nil {
		h.logger.Error("list objects failed", zap.String("room", roomID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load objects"})
	}

	objects := make([]model.Object, 0, len(entries))
	for _, e := range entries {
		obj, err := model.DecodeObject(e.Value)
		if err != nil {
			continue
		}
		objects = append(objects, obj)
	}
	return c.JSON(fiber.Map{"room_id": roomID, "objects": objects})
}

// GetPresence 룸의 참가자 스냅샷 (커서 포함)
func (h *RoomHandler) GetPresence(c *fiber.Ctx) error {
	roomID := c.Params("roomId")
	if !store.ValidID(roomID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid room id"})
	}
	ctx := c.UserContext()

	presence, err := h.backend.List(ctx, store.CollectionPrefix(roomID, model.KindPresence))
	if err != nil {
		h.logger.Error("list presence failed", zap.String("room", roomID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load presence"})
	}
	cursors, err := h.backend.List(ctx, store.CollectionPrefix(roomID, model.KindCursors))
	if err != nil {
		h.logger.Error("list cursors failed", zap.String("room", roomID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load presence"})
	}

	byID := make(map[string]model.Cursor, len(cursors))
	for _, e := range cursors {
		parsed, err := store.ParsePath(e.Path)
		if err != nil {
			continue
		}
		if cur, err := model.DecodeCursor(e.Value); err == nil {
			byID[parsed.ID] = cur
		}
	}

	participants := make([]model.Participant, 0, len(presence))
	for _, e := range presence {
		p, err := model.DecodeParticipant(e.Value)
		if err != nil {
			continue
		}
		if cur, ok := byID[p.ParticipantID]; ok {
			cur := cur
			p.Cursor = &cur
		}
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].ParticipantID < participants[j].ParticipantID
	})
	return c.JSON(fiber.Map{"room_id": roomID, "participants": participants})
}
