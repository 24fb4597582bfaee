package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

// LocalsRoomID holds the validated :roomId parameter.
const LocalsRoomID = "roomId"

// RoomDirectory says which rooms exist.
type RoomDirectory interface {
	RoomExists(ctx context.Context, roomID string) (bool, error)
}

// RoomMiddleware 룸 접근 미들웨어
type RoomMiddleware struct {
	directory RoomDirectory
	logger    *zap.Logger
}

// NewRoomMiddleware RoomMiddleware 생성
//
// A nil directory accepts every well-formed room id.
func NewRoomMiddleware(directory RoomDirectory, logger *zap.Logger) *RoomMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomMiddleware{directory: directory, logger: logger}
}

// RequireRoom 존재하는 룸 필수
//
// Answers 400 for a malformed id and 404 for an unknown room.
func (m *RoomMiddleware) RequireRoom() fiber.Handler {
	return func(c *fiber.Ctx) error {
		roomID := c.Params("roomId")
		if !store.ValidID(roomID) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid room id",
			})
		}

		if m.directory != nil {
			exists, err := m.directory.RoomExists(c.UserContext(), roomID)
			if err != nil {
				m.logger.Error("room lookup failed", zap.String("room", roomID), zap.Error(err))
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "room lookup failed",
				})
			}
			if !exists {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": store.ErrRoomNotFound.Error(),
				})
			}
		}

		// 룸 ID를 컨텍스트에 저장
		c.Locals(LocalsRoomID, roomID)
		return c.Next()
	}
}
