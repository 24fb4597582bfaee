package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gofiber/fiber/v2"
)

func newApp(m *JWTManager, allowAnonymous bool) *fiber.App {
	app := fiber.New()
	app.Get("/me", AuthMiddleware(m, allowAnonymous), func(c *fiber.Ctx) error {
		id, ok := IdentityFrom(c.Locals(LocalsIdentity))
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(id.ParticipantID)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, _ := m.GenerateAccessToken(Identity{ParticipantID: "alice"})

	app := newApp(m, false)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	assert.Equal(t, nil, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = app.Test(httptest.NewRequest("GET", "/me?token="+token, nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = app.Test(httptest.NewRequest("GET", "/me", nil))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Token abc")
	resp, _ = app.Test(req)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMiddlewareAnonymous(t *testing.T) {
	app := newApp(NewJWTManager("secret", time.Hour), true)

	resp, err := app.Test(httptest.NewRequest("GET", "/me?name=Pat", nil))
	assert.Equal(t, nil, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
