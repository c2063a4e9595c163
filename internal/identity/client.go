// Package identity delegates session validation and user lookup to the
// external users service.
//
// The service's verdicts are kept apart from transport trouble: a rejected
// token is a normal negative result, while an unreachable or misbehaving
// service yields models.ErrUpstreamUnavailable. Nothing is cached or retried;
// every call is one round trip bounded by the configured timeout.
package identity

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"products/internal/models"
)

// DefaultTimeout bounds a call when neither the config nor the context does.
const DefaultTimeout = 5 * time.Second

// Client talks to the users service over HTTP.
type Client struct {
	baseURL string
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewClient creates a Client for the users service rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		log:     log.WithField("component", "identity"),
	}
}

// ValidateSession asks the users service whether token is a live session.
// A 401 answer, or a session reported as invalid, yields Valid=false and no
// error.
func (c *Client) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return &models.Session{Valid: false}, nil
	}

	code, body, err := c.get(ctx, "/sessions/validate/"+url.PathEscape(token), "validate session")
	if err != nil {
		return nil, err
	}

	switch {
	case code == fiber.StatusUnauthorized:
		return &models.Session{Valid: false}, nil
	case code >= 200 && code < 300:
		var session models.Session
		if err := json.Unmarshal(body, &session); err != nil {
			return nil, errors.Wrapf(models.ErrUpstreamUnavailable, "validate session: malformed response: %v", err)
		}
		if !session.Valid || session.User == nil || session.User.ID == "" {
			return &models.Session{Valid: false}, nil
		}
		return &session, nil
	default:
		return nil, errors.Wrapf(models.ErrUpstreamUnavailable, "validate session: unexpected status %d", code)
	}
}

// GetUser fetches a user profile. A missing user yields (nil, nil).
func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	code, body, err := c.get(ctx, "/users/"+url.PathEscape(id), "get user")
	if err != nil {
		return nil, err
	}

	switch {
	case code == fiber.StatusNotFound:
		return nil, nil
	case code >= 200 && code < 300:
		var user models.User
		if err := json.Unmarshal(body, &user); err != nil {
			return nil, errors.Wrapf(models.ErrUpstreamUnavailable, "get user: malformed response: %v", err)
		}
		return &user, nil
	default:
		return nil, errors.Wrapf(models.ErrUpstreamUnavailable, "get user %s: unexpected status %d", id, code)
	}
}

// get performs one GET. op names the call in errors and logs so the token,
// which travels in the path, is never printed.
func (c *Client) get(ctx context.Context, path, op string) (int, []byte, error) {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil || timeout <= 0 {
		return 0, nil, errors.Wrapf(models.ErrUpstreamUnavailable, "%s: deadline exceeded", op)
	}

	agent := fiber.Get(c.baseURL + path)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Timeout(timeout)

	start := time.Now()
	code, body, errs := agent.Bytes()
	entry := c.log.WithFields(logrus.Fields{
		"op":      op,
		"status":  code,
		"latency": time.Since(start),
	})
	if len(errs) > 0 {
		entry.WithError(errs[0]).Warn("Users service request failed")
		return 0, nil, errors.Wrapf(models.ErrUpstreamUnavailable, "%s: %v", op, errs[0])
	}
	entry.Debug("Users service responded")
	return code, body, nil
}
