package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestProduceMessage_EncodesJSON(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got map[string]string
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got["user_id"] != "u1" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewProducerFromSync(sp, zap.NewNop())
	err := p.ProduceMessage(context.Background(), "cart_events", "u1", map[string]string{"user_id": "u1"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProduceMessage_PropagatesSendError(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFromSync(sp, zap.NewNop())
	err := p.ProduceMessage(context.Background(), "cart_events", "", struct{}{})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	headers := traceHeaders(ctx)
	require.NotEmpty(t, headers)

	msg := &sarama.ConsumerMessage{Topic: "order_events"}
	for i := range headers {
		msg.Headers = append(msg.Headers, &headers[i])
	}

	extracted := otel.GetTextMapPropagator().Extract(context.Background(), consumerCarrier(msg))
	require.Equal(t, traceID, trace.SpanContextFromContext(extracted).TraceID())
}
