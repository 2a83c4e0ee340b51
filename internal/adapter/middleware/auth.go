package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

const identityKey = "identity"

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
)

// TokenVerifier turns a bearer token into the identity it was issued for.
type TokenVerifier interface {
	Verify(raw string) (domain.Identity, error)
}

// Protected rejects requests without a valid bearer token and stores the caller's identity in Locals.
func Protected(tokens TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 1. Get Token from Header
		authHeader := c.Get(fiber.HeaderAuthorization)
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return ErrUnauthenticated
		}

		// 2. Verify signature and expiry
		id, err := tokens.Verify(parts[1])
		if err != nil {
			return ErrUnauthenticated
		}

		// 3. Save Identity to Context (so handlers know who is calling)
		c.Locals(identityKey, id)
		return c.Next()
	}
}

// RequireAdmin must run after Protected.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := Identity(c)
		if !ok {
			return ErrUnauthenticated
		}
		if !id.IsAdmin() {
			return ErrForbidden
		}
		return c.Next()
	}
}

// Identity returns the caller stored by Protected.
func Identity(c *fiber.Ctx) (domain.Identity, bool) {
	id, ok := c.Locals(identityKey).(domain.Identity)
	return id, ok
}
