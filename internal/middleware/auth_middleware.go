package middleware

import (
	"context"
	"log"
	"strings"

	"accounts/internal/common"
	"accounts/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "token"

const userLocalsKey = "user"

// Authenticator resolves the user owning a session token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// TokenExtractor pulls a session token out of a request. It returns "" when
// the request carries none.
type TokenExtractor func(c *fiber.Ctx) string

// FromCookie reads the token from the named cookie.
func FromCookie(name string) TokenExtractor {
	return func(c *fiber.Ctx) string {
		return c.Cookies(name)
	}
}

// FromBearerHeader reads the token from an "Authorization: Bearer <token>" header.
func FromBearerHeader() TokenExtractor {
	return func(c *fiber.Ctx) string {
		authHeader := c.Get(fiber.HeaderAuthorization)
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
}

// FirstOf tries each extractor in order and returns the first token found.
func FirstOf(extractors ...TokenExtractor) TokenExtractor {
	return func(c *fiber.Ctx) string {
		for _, extract := range extractors {
			if token := extract(c); token != "" {
				return token
			}
		}
		return ""
	}
}

// AuthRequired is a Fiber middleware that only lets requests with a valid
// session through and stores the resolved user for later handlers.
func AuthRequired(auth Authenticator, extract TokenExtractor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extract(c)
		if token == "" {
			return common.Unauthenticated("Not authorized, please login")
		}

		user, err := auth.Authenticate(c.UserContext(), token)
		if err != nil {
			log.Printf("Session rejected for %s %s: %v", c.Method(), c.Path(), err)
			return err
		}

		// Handlers that need the hash reload the user from the store.
		identity := *user
		identity.Password = ""
		c.Locals(userLocalsKey, &identity)
		return c.Next()
	}
}

// CurrentUser returns the user stored by AuthRequired.
func CurrentUser(c *fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals(userLocalsKey).(*models.User)
	return user, ok && user != nil
}
