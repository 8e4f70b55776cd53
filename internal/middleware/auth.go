package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/SinaHo/phone-referral-auth/internal/model"
)

const principalKey = "principal"

// TokenParser resolves a bearer token to the caller it identifies.
type TokenParser interface {
	Parse(raw string) (*model.Principal, error)
}

// Authenticate attaches the caller identified by the Authorization header, if any.
// Requests without the header continue anonymously; a malformed or invalid token is rejected.
func Authenticate(logger *zap.SugaredLogger, tokens TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Next()
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		tokenString = strings.TrimSpace(tokenString)
		if !ok || tokenString == "" {
			logger.Warnw("Malformed authorization header", "path", c.Path())
			return unauthorized(c, "invalid authorization header")
		}

		p, err := tokens.Parse(tokenString)
		if err != nil {
			logger.Warnw("Invalid token", "path", c.Path(), "error", err)
			return unauthorized(c, "invalid or expired token")
		}

		c.Locals(principalKey, p)
		return c.Next()
	}
}

// RequireAuth rejects anonymous callers. It must run after Authenticate.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetPrincipal(c) == nil {
			return unauthorized(c, "authentication credentials were not provided")
		}
		return c.Next()
	}
}

// GetPrincipal returns the authenticated caller or nil.
func GetPrincipal(c *fiber.Ctx) *model.Principal {
	p, ok := c.Locals(principalKey).(*model.Principal)
	if !ok {
		return nil
	}
	return p
}

func unauthorized(c *fiber.Ctx, msg string) error {
	c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="api"`)
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": msg,
	})
}
