package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/cart-service/pkg/metrics"
	"github.com/sakashimaa/cart-service/services/cart/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CartRepository stores whole cart snapshots under caller-derived keys.
// Save always overwrites and resets the key's expiry. Failures are recorded
// on the span and returned; logging is left to the caller.
type CartRepository interface {
	Get(ctx context.Context, key string) (*domain.Cart, error)
	Save(ctx context.Context, key string, cart *domain.Cart, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

type cartRepo struct {
	client  redis.UniversalClient
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

func NewCartRepository(client redis.UniversalClient, m *metrics.Metrics) CartRepository {
	return &cartRepo{
		client:  client,
		metrics: m,
		tracer:  otel.Tracer("cart/cart_repo"),
	}
}

func (r *cartRepo) Get(ctx context.Context, key string) (*domain.Cart, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Get")
	defer span.End()

	span.SetAttributes(attribute.String("key", key))

	start := time.Now()
	data, err := r.client.Get(ctx, key).Bytes()
	r.metrics.ObserveStore("get", start)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCartNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("error reading cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	cart.Normalize()

	return &cart, nil
}

func (r *cartRepo) Save(ctx context.Context, key string, cart *domain.Cart, ttl time.Duration) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.String("key", key),
		attribute.Int("items", len(cart.Items)),
		attribute.String("ttl", ttl.String()),
	)

	data, err := json.Marshal(cart)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error encoding cart: %w", err)
	}

	start := time.Now()
	err = r.client.Set(ctx, key, data, ttl).Err()
	r.metrics.ObserveStore("set", start)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error writing cart: %w", err)
	}

	return nil
}

func (r *cartRepo) Delete(ctx context.Context, key string) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Delete")
	defer span.End()

	span.SetAttributes(attribute.String("key", key))

	start := time.Now()
	err := r.client.Del(ctx, key).Err()
	r.metrics.ObserveStore("del", start)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error deleting cart: %w", err)
	}

	return nil
}

func (r *cartRepo) Ping(ctx context.Context) error {
	start := time.Now()
	err := r.client.Ping(ctx).Err()
	r.metrics.ObserveStore("ping", start)

	return err
}
