package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ErrMissingToken is returned by Resolve when no token was sent and
// anonymous access is off.
var ErrMissingToken = errors.New("missing authorization token")

// LocalsIdentity is the Locals key holding the resolved Identity.
const LocalsIdentity = "identity"

// ExtractToken reads a bearer token from the Authorization header, the
// "token" query parameter (browsers cannot set headers on websocket
// upgrades) or the access_token cookie.
func ExtractToken(c *fiber.Ctx) (string, error) {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return "", ErrInvalidToken
		}
		return parts[1], nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return c.Cookies("access_token"), nil
}

// Resolve 요청의 신원 확인
//
// Without a token it falls back to an anonymous identity when allowAnonymous
// is set.
func Resolve(c *fiber.Ctx, jwtManager *JWTManager, allowAnonymous bool) (Identity, error) {
	token, err := ExtractToken(c)
	if err != nil {
		return Identity{}, err
	}
	if token == "" {
		if !allowAnonymous {
			return Identity{}, ErrMissingToken
		}
		return Anonymous(c.Query("name")), nil
	}
	return jwtManager.ValidateAccessToken(token)
}

// AuthMiddleware 인증 미들웨어
//
// The resolved identity is stored in Locals.
func AuthMiddleware(jwtManager *JWTManager, allowAnonymous bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := Resolve(c, jwtManager, allowAnonymous)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		c.Locals(LocalsIdentity, id)
		return c.Next()
	}
}

// IdentityFrom unpacks the value stored under LocalsIdentity.
func IdentityFrom(v interface{}) (Identity, bool) {
	id, ok := v.(Identity)
	return id, ok
}
