package testsuite

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

// BaseSuite starts the containers a cart integration test needs.
// Kafka is only started when WithKafka is set before SetupInfrastructure.
type BaseSuite struct {
	suite.Suite
	RedisContainer *tcredis.RedisContainer
	KafkaContainer *kafka.KafkaContainer
	Redis          *redis.Client
	KafkaBrokers   []string
	WithKafka      bool
	Logger         *zap.Logger
	Ctx            context.Context
}

// SkipIfShort skips container-backed suites under `go test -short` or when
// INTEGRATION=0 is set.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() || os.Getenv("INTEGRATION") == "0" {
		t.Skip("skipping container-backed integration test")
	}
}

func (s *BaseSuite) SetupInfrastructure() {
	s.Ctx = context.Background()
	s.Logger = zap.NewNop()

	var err error
	s.RedisContainer, err = tcredis.Run(s.Ctx, "redis:7-alpine")
	s.Require().NoError(err)

	connStr, err := s.RedisContainer.ConnectionString(s.Ctx)
	s.Require().NoError(err)

	opts, err := redis.ParseURL(connStr)
	s.Require().NoError(err)

	s.Redis = redis.NewClient(opts)
	s.Require().NoError(s.Redis.Ping(s.Ctx).Err())

	if s.WithKafka {
		s.KafkaContainer, err = kafka.Run(
			s.Ctx,
			"confluentinc/cp-kafka:7.5.0",
			kafka.WithClusterID("test-cluster"),
		)
		s.Require().NoError(err)

		s.KafkaBrokers, err = s.KafkaContainer.Brokers(s.Ctx)
		s.Require().NoError(err)
	}
}

func (s *BaseSuite) TearDownInfrastructure() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.RedisContainer != nil {
		if err := s.RedisContainer.Terminate(s.Ctx); err != nil {
			s.T().Logf("Failed to terminate redis container: %v", err)
		}
	}
	if s.KafkaContainer != nil {
		if err := s.KafkaContainer.Terminate(s.Ctx); err != nil {
			s.T().Logf("Failed to terminate kafka container: %v", err)
		}
	}
}

func (s *BaseSuite) FlushRedis() {
	s.Require().NoError(s.Redis.FlushDB(s.Ctx).Err())
}
