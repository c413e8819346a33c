package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"buscacliente/config"
)

// Protected guards the management API with a shared internal token. The
// engine sits behind the main application backend, not the public internet,
// so a static service token replaces per-user auth here. An empty configured
// token disables the check for local development.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := config.AppConfig.InternalAPIToken
		if expected == "" {
			return c.Next()
		}

		token := c.Get("X-Internal-Token")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization required",
			})
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}
		return c.Next()
	}
}
