package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/sakashimaa/cart-service/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("outbox queue full")

type Producer interface {
	ProduceMessage(ctx context.Context, topic, key string, message interface{}) error
}

type Message struct {
	ctx     context.Context
	Topic   string
	Key     string
	Payload interface{}
}

type Options struct {
	BufferSize int
	BatchSize  int
	Interval   time.Duration
}

// Relay takes events off the request path: ProduceMessage only enqueues and
// a worker publishes in batches. Queued messages are lost on a crash.
type Relay struct {
	producer  Producer
	queue     chan Message
	logger    *zap.Logger
	batchSize int
	interval  time.Duration
	tracer    trace.Tracer
}

func NewRelay(producer Producer, logger *zap.Logger, opts Options) *Relay {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}

	return &Relay{
		producer:  producer,
		queue:     make(chan Message, opts.BufferSize),
		logger:    logger,
		batchSize: opts.BatchSize,
		interval:  opts.Interval,
		tracer:    otel.Tracer("outbox-relay"),
	}
}

// ProduceMessage never blocks. The caller's trace context travels with the
// message but its cancellation does not.
func (r *Relay) ProduceMessage(ctx context.Context, topic, key string, message interface{}) error {
	msg := Message{
		ctx:     context.WithoutCancel(ctx),
		Topic:   topic,
		Key:     key,
		Payload: message,
	}

	select {
	case r.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *Relay) Pending() int {
	return len(r.queue)
}

// Start publishes until ctx is cancelled, then flushes what is still queued.
func (r *Relay) Start(ctx context.Context) {
	mylogger.Info(ctx, r.logger, "Starting outbox relay")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx := context.WithoutCancel(ctx)
			for r.processBatch(flushCtx) > 0 {
			}

			mylogger.Info(ctx, r.logger, "Outbox relay stopping")
			return
		case <-ticker.C:
			for r.processBatch(ctx) == r.batchSize {
			}
		}
	}
}

// processBatch publishes up to batchSize queued messages and returns how many it took.
func (r *Relay) processBatch(ctx context.Context) int {
	batch := make([]Message, 0, r.batchSize)
	for len(batch) < r.batchSize {
		select {
		case msg := <-r.queue:
			batch = append(batch, msg)
			continue
		default:
		}
		break
	}

	if len(batch) == 0 {
		return 0
	}

	ctx, span := r.tracer.Start(ctx, "OutboxRelay.processBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(batch)))

	failed := 0
	for _, msg := range batch {
		msgCtx := trace.ContextWithSpanContext(ctx, trace.SpanContextFromContext(msg.ctx))
		if err := r.producer.ProduceMessage(msgCtx, msg.Topic, msg.Key, msg.Payload); err != nil {
			failed++
			mylogger.Error(
				msgCtx,
				r.logger,
				"outbox relay produce message failed",
				zap.String("topic", msg.Topic),
				zap.String("key", msg.Key),
				zap.Error(err),
			)
		}
	}

	if failed > 0 {
		span.SetAttributes(attribute.Int("failed", failed))
	}

	mylogger.Debug(ctx, r.logger, "outbox relay batch published", zap.Int("count", len(batch)), zap.Int("failed", failed))
	return len(batch)
}
