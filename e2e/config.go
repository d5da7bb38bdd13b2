package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_SERVER_ADDR is the base URL of a running server. The suite is
	// skipped when it is empty.
	ServerAddr string `envconfig:"E2E_SERVER_ADDR"`
	HealthAddr string `envconfig:"E2E_HEALTH_ADDR" default:"localhost:9082"`
	// Must match the server's JWT_SECRET_KEY to mint test tokens
	JwtSecretKey string `envconfig:"E2E_JWT_SECRET_KEY"`
	// E2E_DEBUG_JSON dumps every response body
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
