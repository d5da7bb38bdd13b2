package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	StoreBadger = "badger"
	StoreRedis  = "redis"
)

type Config struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8082"`
	GrpcHealthPort int    `env:"GRPC_HEALTH_PORT,default=9082"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`

	JwtSecretKey      string        `env:"JWT_SECRET_KEY,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=8760h"`

	IdentityServiceURL string        `env:"IDENTITY_SERVICE_URL,required=true"`
	IdentityTimeout    time.Duration `env:"IDENTITY_TIMEOUT,default=5s"`

	StoreBackend   string `env:"STORE_BACKEND,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	RedisAddr      string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB,default=0"`
	RedisPrefix    string `env:"REDIS_PREFIX,default=duo-chat:"`

	CorsAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=*"`

	MaxContentLength    int           `env:"MAX_CONTENT_LENGTH,default=280"`
	HealthProbeInterval time.Duration `env:"HEALTH_PROBE_INTERVAL,default=10s"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Validate checks what the env tags cannot express.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreBadger, StoreRedis:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreBadger, StoreRedis, c.StoreBackend)
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	}
	if c.IdentityTimeout <= 0 {
		return fmt.Errorf("IDENTITY_TIMEOUT must be positive, got %s", c.IdentityTimeout)
	}
	if c.HealthProbeInterval <= 0 {
		return fmt.Errorf("HEALTH_PROBE_INTERVAL must be positive, got %s", c.HealthProbeInterval)
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	origins := lo.Map(strings.Split(c.CorsAllowedOrigins, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	})
	return lo.Compact(origins)
}
