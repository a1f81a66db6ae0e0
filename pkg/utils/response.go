package utils

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Success writes the standard envelope with the default status text as
// message.
func Success(c *fiber.Ctx, status int, data interface{}) error {
	return SuccessMessage(c, status, http.StatusText(status), data)
}

func SuccessMessage(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
		"status":  status,
	})
}

// Error writes a failure envelope. code is a stable machine-readable
// identifier such as FILE_NOT_FOUND.
func Error(c *fiber.Ctx, status int, code, message string) error {
	return ErrorWithDetails(c, status, code, message, nil)
}

func ErrorWithDetails(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   code,
		"message": message,
		"details": details,
		"status":  status,
	})
}
