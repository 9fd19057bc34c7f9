package utils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"video-relay-go/models"
)

// ErrorJSON returns a JSON error response
func ErrorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(models.ErrorResponse{Error: message})
}

// BadRequest returns 400 error
func BadRequest(c *fiber.Ctx, message string) error {
	return ErrorJSON(c, fiber.StatusBadRequest, message)
}

// NotFound returns 404 error
func NotFound(c *fiber.Ctx, message string) error {
	return ErrorJSON(c, fiber.StatusNotFound, message)
}

// MethodNotAllowed returns 405 error
func MethodNotAllowed(c *fiber.Ctx) error {
	return ErrorJSON(c, fiber.StatusMethodNotAllowed, "Method not allowed")
}

// InternalError returns 500 error
func InternalError(c *fiber.Ctx, message string) error {
	return ErrorJSON(c, fiber.StatusInternalServerError, message)
}

// FromError writes a classified error. Only callable before the response
// body has been committed.
func FromError(c *fiber.Ctx, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return ErrorJSON(c, e.Kind.Status(), e.Message)
	}
	return InternalError(c, "Failed to process video")
}
