package main

import (
	"context"
	"log"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/cart-service/pkg/config"
	"github.com/sakashimaa/cart-service/pkg/kafka"
	"github.com/sakashimaa/cart-service/pkg/metrics"
	"github.com/sakashimaa/cart-service/pkg/outbox"
	"github.com/sakashimaa/cart-service/pkg/utils"
	"github.com/sakashimaa/cart-service/services/cart/internal/repository"
	"github.com/sakashimaa/cart-service/services/cart/internal/service"
	"github.com/sakashimaa/cart-service/services/cart/internal/transport/grpc"
	"github.com/sakashimaa/cart-service/services/cart/internal/transport/http"
	"github.com/sakashimaa/cart-service/services/cart/internal/transport/http/handler"
	cartKafka "github.com/sakashimaa/cart-service/services/cart/internal/transport/kafka"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(config.LoggerConfig{
		Level:   cfg.Log.Level,
		Env:     cfg.Env,
		Service: "cart-service",
	})
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, utils.TracerConfig{
		ServiceName: "cart-service",
		Env:         cfg.Env,
		Endpoint:    cfg.Tracing.Endpoint,
		Disabled:    !cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("Error init tracer", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Warn("Failed to instrument redis tracing", zap.Error(err))
	}

	m := metrics.New("cart")

	opts := service.Options{
		KeyPrefix: cfg.Cart.KeyPrefix,
		TTL:       cfg.Cart.TTL,
		Topic:     cfg.Kafka.CartTopic,
		Metrics:   m,
	}

	var (
		producer kafka.Producer
		relay    *outbox.Relay
	)
	if cfg.Kafka.Enabled && cfg.Cart.PublishEvents {
		producer, err = kafka.NewProducer(cfg.Kafka.Brokers, logger)
		if err != nil {
			logger.Fatal("Error creating kafka producer", zap.Error(err))
		}

		relay = outbox.NewRelay(producer, logger, outbox.Options{
			BufferSize: cfg.Kafka.Relay.BufferSize,
			BatchSize:  cfg.Kafka.Relay.BatchSize,
			Interval:   cfg.Kafka.Relay.Interval,
		})
		opts.Publisher = relay
	}

	cartRepository := repository.NewCartRepository(rdb, m)
	cartService := service.NewCartService(cartRepository, opts, logger)
	cartHandler := handler.NewCartHandler(cartService, logger, cfg.HTTP.Timeout)

	var wg sync.WaitGroup

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()

	var relayWG sync.WaitGroup
	if relay != nil {
		relayWG.Add(1)
		go func() {
			defer relayWG.Done()
			relay.Start(relayCtx)
		}()
	}

	reporter := grpc.NewHealthReporter(cartRepository, cfg.GRPC.HealthInterval, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	lis, err := net.Listen("tcp", cfg.GRPC.Port)
	if err != nil {
		logger.Fatal("Error listening gRPC port", zap.String("port", cfg.GRPC.Port), zap.Error(err))
	}

	grpcServer := grpc.NewServer(reporter)
	go func() {
		logger.Info("gRPC server listening", zap.String("port", cfg.GRPC.Port))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("Error serving gRPC", zap.Error(err))
		}
	}()

	app := http.NewApp(http.LimiterConfig{
		Max:        cfg.Limiter.Max,
		Expiration: cfg.Limiter.Expiration,
	})
	http.RegisterRoutes(app, cartHandler, m.Handler())

	go func() {
		logger.Info("HTTP cart service listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			logger.Error("Error listening HTTP", zap.String("port", cfg.HTTP.Port), zap.Error(err))
			stop()
		}
	}()

	if cfg.Kafka.Enabled {
		consumer := cartKafka.NewConsumer(cartService, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.OrderTopic); err != nil {
				logger.Error("Order consumer stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("cart service started!")

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	logger.Info("gRPC service stopped")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", zap.Error(err))
	} else {
		logger.Info("Stopped HTTP server successfully")
	}

	wg.Wait()

	stopRelay()
	relayWG.Wait()

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("Error closing kafka producer", zap.Error(err))
		}
	}

	if err := rdb.Close(); err != nil {
		logger.Error("Error closing redis client", zap.Error(err))
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping telemetry", zap.Error(err))
	} else {
		logger.Info("Telemetry closed correctly")
	}
}
