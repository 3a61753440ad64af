package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/cart-service/pkg/metrics"
	"github.com/sakashimaa/cart-service/pkg/mylogger"
	"github.com/sakashimaa/cart-service/services/cart/internal/domain"
	"github.com/sakashimaa/cart-service/services/cart/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultKeyPrefix = "cart:"
	DefaultTTL       = 24 * time.Hour
)

// CartService is the cart store. Every mutation loads the snapshot, applies
// one change and writes the whole cart back with a fresh TTL. Concurrent
// mutations for the same user are not serialized: the last write wins.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID string, item domain.LineItem) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID string) (*domain.Cart, error)
	DeleteCart(ctx context.Context, userID string) error
	Summary(ctx context.Context, userID string) (domain.Summary, error)
}

// Publisher is satisfied by pkg/kafka.Producer.
type Publisher interface {
	ProduceMessage(ctx context.Context, topic, key string, message interface{}) error
}

type Options struct {
	KeyPrefix string
	TTL       time.Duration
	Now       func() time.Time
	// Publisher is optional; cart events are skipped when nil.
	Publisher Publisher
	Topic     string
	Metrics   *metrics.Metrics
}

type cartService struct {
	repo   repository.CartRepository
	opts   Options
	tracer trace.Tracer
	logger *zap.Logger
}

func NewCartService(repo repository.CartRepository, opts Options, logger *zap.Logger) CartService {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &cartService{
		repo:   repo,
		opts:   opts,
		logger: logger,
		tracer: otel.Tracer("cart/cart_service"),
	}
}

func (s *cartService) key(userID string) string {
	return s.opts.KeyPrefix + userID
}

func (s *cartService) GetCart(ctx context.Context, userID string) (cart *domain.Cart, err error) {
	ctx, span := s.start(ctx, "get_cart", userID)
	defer func() { s.finish(span, "get_cart", err) }()

	cart, err = s.load(ctx, userID)
	if err != nil {
		s.logFailure(ctx, "Failed to get cart", err, zap.String("user_id", userID))
		return nil, err
	}

	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, userID string, item domain.LineItem) (cart *domain.Cart, err error) {
	ctx, span := s.start(ctx, "add_item", userID)
	defer func() { s.finish(span, "add_item", err) }()

	span.SetAttributes(
		attribute.String("product_id", item.ProductID),
		attribute.Int("quantity", item.Quantity),
	)

	cart, err = s.mutate(ctx, userID, func(c *domain.Cart, now time.Time) {
		c.AddItem(item, now)
	})
	if err != nil {
		s.logFailure(ctx, "Failed to add item", err,
			zap.String("user_id", userID),
			zap.String("product_id", item.ProductID),
		)
		return nil, err
	}

	s.publish(ctx, domain.EventCartItemAdded, userID, func(meta domain.EventMeta) any {
		return domain.CartItemAddedEvent{
			EventMeta:   meta,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Added:       item.Quantity,
			Quantity:    cart.Items[item.ProductID].Quantity,
		}
	})

	return cart, nil
}

func (s *cartService) RemoveItem(ctx context.Context, userID, productID string) (cart *domain.Cart, err error) {
	ctx, span := s.start(ctx, "remove_item", userID)
	defer func() { s.finish(span, "remove_item", err) }()

	span.SetAttributes(attribute.String("product_id", productID))

	var removed bool
	cart, err = s.mutate(ctx, userID, func(c *domain.Cart, now time.Time) {
		removed = c.Has(productID)
		c.RemoveItem(productID, now)
	})
	if err != nil {
		s.logFailure(ctx, "Failed to remove item", err,
			zap.String("user_id", userID),
			zap.String("product_id", productID),
		)
		return nil, err
	}

	if removed {
		s.publish(ctx, domain.EventCartItemRemoved, userID, func(meta domain.EventMeta) any {
			return domain.CartItemRemovedEvent{EventMeta: meta, ProductID: productID}
		})
	}

	return cart, nil
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, userID, productID string, quantity int) (cart *domain.Cart, err error) {
	ctx, span := s.start(ctx, "update_item_quantity", userID)
	defer func() { s.finish(span, "update_item_quantity", err) }()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int("quantity", quantity),
	)

	var found bool
	cart, err = s.mutate(ctx, userID, func(c *domain.Cart, now time.Time) {
		found = c.UpdateItemQuantity(productID, quantity, now)
	})
	if err != nil {
		s.logFailure(ctx, "Failed to update item quantity", err,
			zap.String("user_id", userID),
			zap.String("product_id", productID),
			zap.Int("quantity", quantity),
		)
		return nil, err
	}

	if found {
		s.publish(ctx, domain.EventCartItemQuantityUpdated, userID, func(meta domain.EventMeta) any {
			return domain.CartItemQuantityUpdatedEvent{
				EventMeta: meta,
				ProductID: productID,
				Quantity:  max(quantity, 0),
				Removed:   quantity <= 0,
			}
		})
	}

	return cart, nil
}

func (s *cartService) ClearCart(ctx context.Context, userID string) (cart *domain.Cart, err error) {
	ctx, span := s.start(ctx, "clear_cart", userID)
	defer func() { s.finish(span, "clear_cart", err) }()

	cart, err = s.mutate(ctx, userID, func(c *domain.Cart, now time.Time) {
		c.Clear(now)
	})
	if err != nil {
		s.logFailure(ctx, "Failed to clear cart", err, zap.String("user_id", userID))
		return nil, err
	}

	s.publish(ctx, domain.EventCartCleared, userID, func(meta domain.EventMeta) any {
		return domain.CartClearedEvent{EventMeta: meta}
	})

	return cart, nil
}

func (s *cartService) DeleteCart(ctx context.Context, userID string) (err error) {
	ctx, span := s.start(ctx, "delete_cart", userID)
	defer func() { s.finish(span, "delete_cart", err) }()

	if err := ValidateUserID(userID); err != nil {
		s.logFailure(ctx, "Failed to delete cart", err, zap.String("user_id", userID))
		return err
	}

	if err := s.repo.Delete(ctx, s.key(userID)); err != nil {
		s.logFailure(ctx, "Failed to delete cart", err, zap.String("user_id", userID))
		return err
	}

	s.publish(ctx, domain.EventCartDeleted, userID, func(meta domain.EventMeta) any {
		return domain.CartDeletedEvent{EventMeta: meta}
	})

	return nil
}

func (s *cartService) Summary(ctx context.Context, userID string) (summary domain.Summary, err error) {
	ctx, span := s.start(ctx, "summary", userID)
	defer func() { s.finish(span, "summary", err) }()

	cart, err := s.load(ctx, userID)
	if err != nil {
		s.logFailure(ctx, "Failed to summarize cart", err, zap.String("user_id", userID))
		return domain.Summary{}, err
	}

	return cart.Summary(), nil
}

// load returns the stored cart or a fresh empty one that is not persisted.
func (s *cartService) load(ctx context.Context, userID string) (*domain.Cart, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	cart, err := s.repo.Get(ctx, s.key(userID))
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			mylogger.Debug(ctx, s.logger, "Cart not found, starting empty", zap.String("user_id", userID))
			return domain.NewCart(userID, s.opts.Now()), nil
		}

		return nil, err
	}

	return cart, nil
}

func (s *cartService) mutate(ctx context.Context, userID string, apply func(c *domain.Cart, now time.Time)) (*domain.Cart, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	apply(cart, s.opts.Now())

	if err := s.repo.Save(ctx, s.key(userID), cart, s.opts.TTL); err != nil {
		return nil, err
	}

	return cart, nil
}

// publish never fails the operation: the stored snapshot is the source of truth.
func (s *cartService) publish(ctx context.Context, event, userID string, build func(meta domain.EventMeta) any) {
	if s.opts.Publisher == nil {
		return
	}

	msg := domain.OutgoingEvent{
		Event: event,
		Payload: build(domain.EventMeta{
			EventID:    uuid.NewString(),
			UserID:     userID,
			OccurredAt: s.opts.Now().UTC(),
		}),
	}

	err := s.opts.Publisher.ProduceMessage(ctx, s.opts.Topic, userID, msg)
	s.opts.Metrics.ObserveEvent(event, err)
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Failed to publish cart event",
			zap.String("event", event),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// logFailure is the single log site for a failed operation. Invalid ids are
// client mistakes and stay at debug.
func (s *cartService) logFailure(ctx context.Context, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, ErrInvalidUserID) {
		mylogger.Debug(ctx, s.logger, msg, fields...)
		return
	}
	mylogger.Error(ctx, s.logger, msg, fields...)
}

func (s *cartService) start(ctx context.Context, operation, userID string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "CartService."+operation)
	span.SetAttributes(attribute.String("user_id", userID))
	return ctx, span
}

func (s *cartService) finish(span trace.Span, operation string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.opts.Metrics.ObserveOperation(operation, err)
	span.End()
}
