package handlers

import (
	"log"

	"accounts/internal/common"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is the single place where errors become HTTP responses.
// Install it as fiber.Config.ErrorHandler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := common.HTTPStatusFromError(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("Request %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"message": common.PublicMessage(err),
	})
}
