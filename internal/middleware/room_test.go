package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/gofiber/fiber/v2"
)

type fakeDirectory map[string]bool

func (d fakeDirectory) RoomExists(ctx context.Context, roomID string) (bool, error) {
	if roomID == "broken" {
		return false, errors.New("db down")
	}
	return d[roomID], nil
}

func newApp(dir RoomDirectory) *fiber.App {
	app := fiber.New()
	m := NewRoomMiddleware(dir, nil)
	app.Get("/rooms/:roomId", m.RequireRoom(), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(LocalsRoomID).(string))
	})
	return app
}

func status(t *testing.T, app *fiber.App, path string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode
}

func TestRequireRoom(t *testing.T) {
	app := newApp(fakeDirectory{"r1": true})

	assert.Equal(t, fiber.StatusOK, status(t, app, "/rooms/r1"))
	assert.Equal(t, fiber.StatusNotFound, status(t, app, "/rooms/r2"))
	assert.Equal(t, fiber.StatusBadRequest, status(t, app, "/rooms/bad%20id"))
	assert.Equal(t, fiber.StatusInternalServerError, status(t, app, "/rooms/broken"))
}

func TestRequireRoomWithoutDirectory(t *testing.T) {
	app := newApp(nil)
	assert.Equal(t, fiber.StatusOK, status(t, app, "/rooms/anything"))
}
