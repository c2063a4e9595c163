package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"products/internal/models"
)

// statusFor maps a service error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Internal failures are logged
// and their details kept out of the response.
func respondError(c *fiber.Ctx, log logrus.FieldLogger, err error, message string) error {
	status := statusFor(err)
	body := fiber.Map{"message": message}

	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		body["message"] = "Validation failed"
		body["errors"] = verr.Fields
	case errors.Is(err, models.ErrInvalidStock):
		body["message"] = "Insufficient stock"
	case status == fiber.StatusInternalServerError:
		log.WithError(err).WithField("path", c.Path()).Error(message)
	default:
		body["error"] = errors.Cause(err).Error()
	}
	return c.Status(status).JSON(body)
}
