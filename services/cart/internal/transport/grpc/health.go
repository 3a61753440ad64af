package grpc

import (
	"context"
	"time"

	"github.com/sakashimaa/cart-service/pkg/mylogger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	googleGrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported to grpc.health.v1 clients next to the
// empty overall status.
const ServiceName = "cart.CartService"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter keeps the health service in line with store reachability.
type HealthReporter struct {
	pinger   Pinger
	health   *health.Server
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	serving  bool
}

func NewHealthReporter(pinger Pinger, interval time.Duration, logger *zap.Logger) *HealthReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthReporter{
		pinger:   pinger,
		health:   hs,
		interval: interval,
		timeout:  time.Second,
		logger:   logger,
	}
}

func (h *HealthReporter) Server() healthpb.HealthServer {
	return h.health
}

// Check pings the store once and updates the served status.
func (h *HealthReporter) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := h.pinger.Ping(pingCtx)
	serving := err == nil

	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)

	if serving != h.serving {
		if serving {
			mylogger.Info(ctx, h.logger, "Cart store reachable, serving")
		} else {
			mylogger.Warn(ctx, h.logger, "Cart store unreachable, not serving", zap.Error(err))
		}
	}
	h.serving = serving

	return serving
}

// Run checks immediately and then on every interval until ctx is done,
// at which point every service is marked NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

func NewServer(reporter *HealthReporter) *googleGrpc.Server {
	s := googleGrpc.NewServer(
		googleGrpc.StatsHandler(otelgrpc.NewServerHandler()),
	)

	healthpb.RegisterHealthServer(s, reporter.Server())
	reflection.Register(s)

	return s
}
