package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/cart-service/pkg/kafka"
	"github.com/sakashimaa/cart-service/pkg/mylogger"
	"github.com/sakashimaa/cart-service/services/cart/internal/domain"
	"github.com/sakashimaa/cart-service/services/cart/internal/service"
	"go.uber.org/zap"
)

// CartDeleter is the slice of the cart store the consumer needs.
type CartDeleter interface {
	DeleteCart(ctx context.Context, userID string) error
}

const (
	defaultDeleteAttempts = 3
	defaultRetryBackoff   = 100 * time.Millisecond
)

type Consumer struct {
	service  CartDeleter
	logger   *zap.Logger
	attempts int
	backoff  time.Duration
}

func NewConsumer(service CartDeleter, logger *zap.Logger) *Consumer {
	return &Consumer{
		service:  service,
		logger:   logger,
		attempts: defaultDeleteAttempts,
		backoff:  defaultRetryBackoff,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, groupID, topic string) error {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		[]string{topic},
		c.processMessage,
		c.logger,
	)

	return consumerGroup.Run(ctx)
}

// processMessage drops the ordering user's cart once an order exists.
// Malformed messages are logged and skipped. Store failures are retried in
// place a bounded number of times; after that the error is returned and the
// message is skipped, since the next marked offset commits past it.
func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Debug(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
		zap.Int64("offset", msg.Offset),
	)

	var wrapper domain.EventWrapper
	if err := json.Unmarshal(msg.Value, &wrapper); err != nil {
		mylogger.Warn(ctx, c.logger, "Skipping malformed message", zap.Error(err))
		return nil
	}

	switch wrapper.Event {
	case domain.EventOrderCreated:
		var event domain.OrderCreatedEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Warn(ctx, c.logger, "Error unmarshalling event structure", zap.Error(err))
			return nil
		}

		userID := string(event.UserID)
		if err := c.deleteWithRetry(ctx, userID); err != nil {
			if errors.Is(err, service.ErrInvalidUserID) {
				mylogger.Warn(ctx, c.logger, "Order event without usable user id", zap.String("user_id", userID))
				return nil
			}
			return err
		}

		mylogger.Info(
			ctx,
			c.logger,
			"Cart deleted after order",
			zap.String("user_id", userID),
			zap.String("order_id", string(event.OrderID)),
		)
	default:
		mylogger.Debug(ctx, c.logger, "Ignored event type", zap.String("event_type", wrapper.Event))
	}

	return nil
}

func (c *Consumer) deleteWithRetry(ctx context.Context, userID string) error {
	attempts := max(c.attempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = c.service.DeleteCart(ctx, userID)
		if err == nil || errors.Is(err, service.ErrInvalidUserID) || attempt == attempts {
			return err
		}

		mylogger.Warn(ctx, c.logger, "Retrying cart delete after order",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		timer := time.NewTimer(c.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}

	return err
}
