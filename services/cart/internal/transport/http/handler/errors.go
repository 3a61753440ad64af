package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/cart-service/services/cart/internal/service"
	"github.com/sony/gobreaker"
)

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidUserID):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fiber.StatusServiceUnavailable, "Service temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "request timed out"
	default:
		return fiber.StatusInternalServerError, "internal error"
	}
}

// countsAsFailure decides what trips the breaker: only store trouble does.
func countsAsFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, service.ErrInvalidUserID) &&
		!errors.Is(err, context.Canceled)
}
