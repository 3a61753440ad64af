package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sakashimaa/cart-service/pkg/utils"
)

type Config struct {
	Env     string  `yaml:"env" env:"ENV" env-default:"local"`
	Log     Log     `yaml:"log"`
	HTTP    HTTP    `yaml:"http"`
	GRPC    GRPC    `yaml:"grpc"`
	Redis   Redis   `yaml:"redis"`
	Cart    Cart    `yaml:"cart"`
	Kafka   Kafka   `yaml:"kafka"`
	Limiter Limiter `yaml:"limiter"`
	Tracing Tracing `yaml:"tracing"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3004"`
	Timeout time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"2s"`
}

type GRPC struct {
	Port           string        `yaml:"port" env:"GRPC_PORT" env-default:":50054"`
	HealthInterval time.Duration `yaml:"health_interval" env-default:"5s"`
}

type Redis struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	PoolSize     int           `yaml:"pool_size" env-default:"10"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"1s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"1s"`
}

// Cart holds the storage policy handed to the cart store.
type Cart struct {
	KeyPrefix     string        `yaml:"key_prefix" env:"CART_KEY_PREFIX" env-default:"cart:"`
	TTL           time.Duration `yaml:"ttl" env:"CART_TTL" env-default:"24h"`
	PublishEvents bool          `yaml:"publish_events" env:"CART_PUBLISH_EVENTS" env-default:"true"`
}

type Kafka struct {
	Enabled    bool     `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"true"`
	Brokers    []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	GroupID    string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"cart-service-group"`
	CartTopic  string   `yaml:"cart_topic" env-default:"cart_events"`
	OrderTopic string   `yaml:"order_topic" env-default:"order_events"`
	Relay      Relay    `yaml:"relay"`
}

// Relay tunes the in-process queue between cart mutations and the producer.
type Relay struct {
	BufferSize int           `yaml:"buffer_size" env-default:"1024"`
	BatchSize  int           `yaml:"batch_size" env-default:"50"`
	Interval   time.Duration `yaml:"interval" env-default:"500ms"`
}

type Limiter struct {
	Max        int           `yaml:"max" env-default:"20"`
	Expiration time.Duration `yaml:"expiration" env-default:"5s"`
}

type Tracing struct {
	Enabled  bool   `yaml:"enabled" env:"TRACING_ENABLED" env-default:"true"`
	Endpoint string `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
}

func MustLoad() *Config {
	configPath := utils.ParseWithFallback("CONFIG_PATH", "./config/local.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return cfg
}

func Load(configPath string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
