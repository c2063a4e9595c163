package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"products/internal/models"
	"products/internal/policy"
)

// SessionTokenHeader is the dedicated header carrying a session token.
const SessionTokenHeader = "X-Session-Token"

const callerKey = "caller"

// SessionValidator resolves a session token into a session outcome.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*models.Session, error)
}

// SessionRequired is a Fiber middleware that validates the session token with
// the users service and stores the resolved caller in the context.
func SessionRequired(validator SessionValidator, log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := SessionToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Session token required",
			})
		}

		session, err := validator.ValidateSession(c.UserContext(), token)
		if err != nil {
			entry := log.WithError(err).WithField("path", c.Path())
			if errors.Is(err, models.ErrUpstreamUnavailable) {
				entry.Warn("Session validation failed")
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"message": "Users service unavailable",
				})
			}
			entry.Error("Session validation failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "Could not validate session",
			})
		}
		if session == nil || !session.Valid || session.User == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid session",
			})
		}

		c.Locals(callerKey, policy.CallerFromUser(session.User))
		return c.Next()
	}
}

// SessionToken extracts the token from the dedicated header, falling back to
// an "Authorization: Bearer" header.
func SessionToken(c *fiber.Ctx) string {
	if token := strings.TrimSpace(c.Get(SessionTokenHeader)); token != "" {
		return token
	}
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// CallerFrom returns the caller stored by SessionRequired. The zero Caller is
// returned on routes without a session.
func CallerFrom(c *fiber.Ctx) policy.Caller {
	caller, _ := c.Locals(callerKey).(policy.Caller)
	return caller
}
