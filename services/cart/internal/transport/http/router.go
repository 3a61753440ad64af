package http

import (
	"net/http"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sakashimaa/cart-service/services/cart/internal/transport/http/handler"
	"github.com/sakashimaa/cart-service/services/cart/internal/transport/http/middleware"
)

type LimiterConfig struct {
	Max        int
	Expiration time.Duration
}

// NewApp builds the fiber app with tracing, panic recovery and per-IP rate limiting.
// A zero Max disables the limiter.
func NewApp(limits LimiterConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "cart-service",
		Immutable:    true,
		UnescapePath: true,
	})

	app.Use(recover.New())
	app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == "/health" || c.Path() == "/metrics"
	})))

	if limits.Max > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        limits.Max,
			Expiration: limits.Expiration,
			Next: func(c *fiber.Ctx) bool {
				return c.Path() == "/health" || c.Path() == "/metrics"
			},
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests. Try again later.",
				})
			},
		}))
	}

	return app
}

func RegisterRoutes(app *fiber.App, h *handler.CartHandler, metrics http.Handler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("Cart Service is alive!")
	})

	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	user := middleware.RequireUserID(handler.UserIDKey)

	cart := app.Group("/api/cart")
	cart.Get("/:userId/summary", user, h.Summary)
	cart.Post("/:userId/add", user, h.AddItem)
	cart.Delete("/:userId/item/:productId", user, h.RemoveItem)
	cart.Put("/:userId/item/:productId/quantity", user, h.UpdateItemQuantity)
	cart.Delete("/:userId/clear", user, h.ClearCart)
	cart.Get("/:userId", user, h.GetCart)
	cart.Delete("/:userId", user, h.DeleteCart)
}
