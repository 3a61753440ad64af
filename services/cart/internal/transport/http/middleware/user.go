package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/cart-service/services/cart/internal/service"
)

// RequireUserID validates the :userId path segment and stores it in
// c.Locals under key. The identifier is trusted as given.
func RequireUserID(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Params("userId")
		if err := service.ValidateUserID(userID); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		c.Locals(key, userID)
		return c.Next()
	}
}
