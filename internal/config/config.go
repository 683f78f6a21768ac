package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendRemote = "remote"

	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// Backend selects the persistence strategy: memory, local or remote.
	Backend  string `envconfig:"STORE_BACKEND" default:"local"`

	ToastTTL time.Duration `envconfig:"TOAST_TTL" default:"3s"`

	HTTP     HTTPConfig
	Snapshot SnapshotConfig
	Mongo    MongoConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Catalog  CatalogConfig
	Breaker  BreakerConfig
}

type HTTPConfig struct {
	Port            string        `envconfig:"HTTP_PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"30s"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"35s"`
	IdleTimeout     time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

// SnapshotConfig is the device-local store. It also holds the session of remote deployments.
type SnapshotConfig struct {
	Driver        string `envconfig:"SNAPSHOT_DRIVER" default:"sqlite"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"corc.db"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"storefront"`
}

type MongoConfig struct {
	URI     string        `envconfig:"MONGO_URI"`
	DBName  string        `envconfig:"MONGO_DB_NAME" default:"corc"`
	Direct  bool          `envconfig:"MONGO_DIRECT" default:"false"`
	Timeout time.Duration `envconfig:"MONGO_CONNECT_TIMEOUT" default:"10s"`
}

// KafkaConfig enables order event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers      []string      `envconfig:"KAFKA_BROKERS"`
	Topic        string        `envconfig:"KAFKA_TOPIC" default:"storefront.orders"`
	PollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"2s"`
}

type AuthConfig struct {
	JWTSecret     string        `envconfig:"AUTH_JWT_SECRET" default:"dev-secret-change-me"`
	TokenTTL      time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"720h"`
	AdminEmail    string        `envconfig:"ADMIN_EMAIL" default:"admin@corc.com"`
	AdminPassword string        `envconfig:"ADMIN_PASSWORD"`
}

type CatalogConfig struct {
	// MockDelay scales the mock API's artificial latency; zero disables it.
	MockDelay time.Duration `envconfig:"MOCK_API_DELAY" default:"600ms"`
}

type BreakerConfig struct {
	MaxFailures uint32        `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	OpenTimeout time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// Load reads an optional .env file, then the environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendMemory, BackendLocal:
	case BackendRemote:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Backend))
	}

	switch c.Snapshot.Driver {
	case DriverSQLite:
		if c.Snapshot.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverRedis:
		if c.Snapshot.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown SNAPSHOT_DRIVER %q", c.Snapshot.Driver))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must not be empty"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL must be positive"))
	}
	if c.ToastTTL <= 0 {
		errs = append(errs, errors.New("TOAST_TTL must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}
