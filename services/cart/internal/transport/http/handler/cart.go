package handler

import (
	"context"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/cart-service/pkg/mylogger"
	"github.com/sakashimaa/cart-service/pkg/utils"
	"github.com/sakashimaa/cart-service/services/cart/internal/domain"
	"github.com/sakashimaa/cart-service/services/cart/internal/service"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// UserIDKey is the fiber local set by middleware.RequireUserID.
const UserIDKey = "userId"

type CartHandler struct {
	service  service.CartService
	validate *validator.Validate
	logger   *zap.Logger
	cb       *gobreaker.CircuitBreaker
	timeout  time.Duration
}

func NewCartHandler(svc service.CartService, logger *zap.Logger, timeout time.Duration) *CartHandler {
	if timeout <= 0 {
		timeout = time.Second
	}

	return &CartHandler{
		service:  svc,
		validate: newValidator(),
		logger:   logger,
		cb: utils.NewBreaker("CartStore", logger, func(err error) bool {
			return !countsAsFailure(err)
		}),
		timeout: timeout,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	utils.RegisterJSONTagNames(v)
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

type AddItemInput struct {
	ProductID   string          `json:"productId" validate:"required,max=128"`
	ProductName string          `json:"productName" validate:"max=256"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Quantity    int             `json:"quantity" validate:"gt=0,lte=1000000"`
}

type UpdateQuantityInput struct {
	Quantity *int `json:"quantity" validate:"required,gte=0,lte=1000000"`
}

type CartResponse struct {
	UserID     string                     `json:"userId"`
	Items      map[string]domain.LineItem `json:"items"`
	CreatedAt  time.Time                  `json:"createdAt"`
	UpdatedAt  time.Time                  `json:"updatedAt"`
	TotalItems int                        `json:"totalItems"`
	TotalPrice decimal.Decimal            `json:"totalPrice"`
}

func toCartResponse(c *domain.Cart) CartResponse {
	return CartResponse{
		UserID:     c.UserID,
		Items:      c.Items,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		TotalItems: c.TotalItems(),
		TotalPrice: c.TotalPrice(),
	}
}

func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	userID := userIDFrom(c)

	cart, err := utils.ExecuteWithBreaker(h.cb, func() (*domain.Cart, error) {
		return h.service.GetCart(ctx, userID)
	})
	if err != nil {
		return h.fail(ctx, c, "get cart failed", userID, err)
	}

	return c.Status(fiber.StatusOK).JSON(toCartResponse(cart))
}

func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	userID := userIDFrom(c)

	input := new(AddItemInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.String("user_id", userID), zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		mylogger.Warn(ctx, h.logger, "add item validation failed", zap.String("user_id", userID), zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	item := domain.LineItem{
		ProductID:   input.ProductID,
		ProductName: input.ProductName,
		UnitPrice:   input.Price,
		Quantity:    input.Quantity,
	}

	cart, err := utils.ExecuteWithBreaker(h.cb, func() (*domain.Cart, error) {
		return h.service.AddItem(ctx, userID, item)
	})
	if err != nil {
		return h.fail(ctx, c, "add item failed", userID, err)
	}

	mylogger.Info(
		ctx,
		h.logger,
		"item added",
		zap.String("user_id", userID),
		zap.String("product_id", item.ProductID),
		zap.Int("quantity", item.Quantity),
	)

	return c.Status(fiber.StatusOK).JSON(toCartResponse(cart))
}

func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	userID := userIDFrom(c)
	productID := c.Params("productId")

	cart, err := utils.ExecuteWithBreaker(h.cb, func() (*domain.Cart, error) {
		return h.service.RemoveItem(ctx, userID, productID)
	})
	if err != nil {
		return h.fail(ctx, c, "remove item failed", userID, err)
	}

	return c.Status(fiber.StatusOK).JSON(toCartResponse(cart))
}

func (h *CartHandler) UpdateItemQuantity(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	userID := userIDFrom(c)
	productID := c.Params("productId")

	input := new(UpdateQuantityInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.String("user_id", userID), zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		mylogger.Warn(ctx, h.logger, "update quantity validation failed", zap.String("user_id", userID), zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	cart, err := utils.ExecuteWithBreaker(h.cb, func() (*domain.Cart, error) {
		return h.service.UpdateItemQuantity(ctx, userID, productID, *input.Quantity)
	})
	if err != nil {
		return h.fail(ctx, c, "update quantity failed", userID, err)
	}

	return c.Status(fiber.StatusOK).JSON(toCartResponse(cart))
}

func (h *CartHandler) ClearCart(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	userID := userIDFrom(c)

	_, err := utils.ExecuteWithBreaker(h.cb, func() (*domain.Cart, error) {
		return h.service.ClearCart(ctx, userID)
	})
	if err != nil {
		return h.fail(ctx, c, "clear cart failed", userID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Cart cleared successfully",
	})
}

func (h *CartHandler) Summary(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	userID := userIDFrom(c)

	summary, err := utils.ExecuteWithBreaker(h.cb, func() (domain.Summary, error) {
		return h.service.Summary(ctx, userID)
	})
	if err != nil {
		return h.fail(ctx, c, "cart summary failed", userID, err)
	}

	return c.Status(fiber.StatusOK).JSON(summary)
}

func (h *CartHandler) DeleteCart(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	userID := userIDFrom(c)

	_, err := utils.ExecuteWithBreaker(h.cb, func() (struct{}, error) {
		return struct{}{}, h.service.DeleteCart(ctx, userID)
	})
	if err != nil {
		return h.fail(ctx, c, "delete cart failed", userID, err)
	}

	mylogger.Info(ctx, h.logger, "cart deleted", zap.String("user_id", userID))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Cart deleted successfully",
	})
}

func (h *CartHandler) fail(ctx context.Context, c *fiber.Ctx, msg, userID string, err error) error {
	status, body := mapError(err)

	// The service already logged the underlying failure. Only a rejection by
	// the open breaker never reached it.
	log := mylogger.Debug
	if status == fiber.StatusServiceUnavailable {
		log = mylogger.Warn
	}
	log(
		ctx,
		h.logger,
		msg,
		zap.String("user_id", userID),
		zap.Int("http_status", status),
		zap.Error(err),
	)

	return c.Status(status).JSON(fiber.Map{
		"error": body,
	})
}

func userIDFrom(c *fiber.Ctx) string {
	if v, ok := c.Locals(UserIDKey).(string); ok {
		return v
	}
	return c.Params("userId")
}
