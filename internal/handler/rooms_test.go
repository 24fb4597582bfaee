package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/assert/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/TURahim/collab-canvas-sub001/internal/cache"
	"github.com/TURahim/collab-canvas-sub001/internal/config"
	"github.com/TURahim/collab-canvas-sub001/internal/database"
	"github.com/TURahim/collab-canvas-sub001/internal/model"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

func getJSON(t *testing.T, app *fiber.App, path string, out any) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
	}
	return resp.StatusCode
}

func TestRoomSnapshots(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()
	ctx := context.Background()

	put := func(path string, v any) {
		t.Helper()
		if _, err := backend.Put(ctx, path, mustJSON(t, v)); err != nil {
			t.Fatal(err)
		}
	}
	put(store.ObjectPath("r1", "o1"), model.Object{
		ObjectID: "o1", Type: "rect", CreatedBy: "alice", LastModifiedBy: "alice", LastModified: 10,
	})
	put(store.ObjectPath("r1", "junk"), map[string]int{"foo": 1})
	put(store.PresencePath("r1", "bob"), model.Participant{ParticipantID: "bob", Online: true, LastHeartbeat: 5})
	put(store.PresencePath("r1", "alice"), model.Participant{ParticipantID: "alice", Online: true, LastHeartbeat: 5})
	put(store.CursorPath("r1", "alice"), model.Cursor{X: 3, Y: 4})

	hub := NewRoomHub(nil, nil)
	rooms := NewRoomHandler(backend, hub, nil)
	app := fiber.New()
	app.Get("/rooms", rooms.ListRooms)
	app.Get("/rooms/:roomId/objects", rooms.GetObjects)
	app.Get("/rooms/:roomId/presence", rooms.GetPresence)

	var objects struct {
		RoomID  string         `json:"room_id"`
		Objects []model.Object `json:"objects"`
	}
	assert.Equal(t, fiber.StatusOK, getJSON(t, app, "/rooms/r1/objects", &objects))
	assert.Equal(t, "r1", objects.RoomID)
	assert.Equal(t, 1, len(objects.Objects))
	assert.Equal(t, "o1", objects.Objects[0].ObjectID)

	var presence struct {
		Participants []model.Participant `json:"participants"`
	}
	assert.Equal(t, fiber.StatusOK, getJSON(t, app, "/rooms/r1/presence", &presence))
	assert.Equal(t, 2, len(presence.Participants))
	assert.Equal(t, "alice", presence.Participants[0].ParticipantID)
	assert.NotEqual(t, nil, presence.Participants[0].Cursor)
	assert.Equal(t, 3.0, presence.Participants[0].Cursor.X)
	assert.Equal(t, true, presence.Participants[1].Cursor == nil)

	var listing struct {
		Rooms []RoomStats `json:"rooms"`
	}
	assert.Equal(t, fiber.StatusOK, getJSON(t, app, "/rooms", &listing))
	assert.Equal(t, 0, len(listing.Rooms))

	assert.Equal(t, fiber.StatusBadRequest, getJSON(t, app, "/rooms/bad%20id/objects", nil))
}

func TestHealthCheck(t *testing.T) {
	backend := store.NewMemoryBackend()
	app := fiber.New()
	h := NewHealthHandler(backend, nil, nil)
	app.Get("/health", h.Check)
	app.Get("/health/ready", h.Readiness)
	app.Get("/health/live", h.Liveness)

	var resp HealthResponse
	assert.Equal(t, fiber.StatusOK, getJSON(t, app, "/health", &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "not_configured", resp.Checks["database"].Status)
	assert.Equal(t, "not_configured", resp.Checks["redis"].Status)
	assert.Equal(t, fiber.StatusOK, getJSON(t, app, "/health/ready", nil))

	backend.Close()
	assert.Equal(t, fiber.StatusServiceUnavailable, getJSON(t, app, "/health", &resp))
	assert.Equal(t, "unhealthy", resp.Checks["store"].Status)
	assert.Equal(t, fiber.StatusServiceUnavailable, getJSON(t, app, "/health/ready", nil))
	assert.Equal(t, fiber.StatusOK, getJSON(t, app, "/health/live", nil))
}

func TestHealthCheckWithDependencies(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()

	db, err := database.Open(sqlite.Open(filepath.Join(t.TempDir(), "health.db")))
	assert.Equal(t, nil, err)
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisClient(config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	assert.Equal(t, nil, err)
	defer rc.Close()

	app := fiber.New()
	app.Get("/health", NewHealthHandler(backend, db, rc).Check)

	var resp HealthResponse
	assert.Equal(t, fiber.StatusOK, getJSON(t, app, "/health", &resp))
	assert.Equal(t, "healthy", resp.Checks["database"].Status)
	assert.Equal(t, "healthy", resp.Checks["redis"].Status)

	mr.Close()
	assert.Equal(t, fiber.StatusServiceUnavailable, getJSON(t, app, "/health", &resp))
	assert.Equal(t, "unhealthy", resp.Checks["redis"].Status)
}
