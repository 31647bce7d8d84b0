package httputil

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// WriteError writes {"error": msg}, defaulting msg to the status text.
func WriteError(c *fiber.Ctx, status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
		if msg == "" {
			msg = "unknown error"
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

// ErrorHandler is the Fiber error handler used by the server. Fiber errors
// keep their status; anything else becomes a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := ""
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		msg = fe.Message
	}
	return WriteError(c, status, msg)
}
