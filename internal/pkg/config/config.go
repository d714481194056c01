package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// APIBaseURL is the application backend (profile, collections, decks).
	APIBaseURL string `env:"API_BASE_URL, default=http://localhost:8080"`
	// ProviderURL is the identity provider origin; its project ref derives
	// the session cookie name (sb-<ref>-auth-token).
	ProviderURL string `env:"PROVIDER_URL, default=http://localhost:8080"`
	ProjectRef  string `env:"PROJECT_REF,  default=local"`

	LandingRoute string        `env:"LANDING_ROUTE, default=/"`
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT,  default=15s"`

	LogLevel  string `env:"LOG_LEVEL,  default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	Vault VaultConfig
}

// VaultConfig selects and configures the durable session cache.
type VaultConfig struct {
	// Driver is one of "file", "redis", "mongo".
	Driver string `env:"VAULT_DRIVER, default=file"`
	// Path is the storage file for the file driver.
	Path string `env:"VAULT_PATH, default=auth-storage.json"`

	RedisAddr string `env:"VAULT_REDIS_ADDR, default=localhost:6379"`
	RedisDB   int    `env:"VAULT_REDIS_DB,   default=0"`

	MongoURI      string `env:"VAULT_MONGO_URI, default=mongodb://localhost:27017"`
	MongoDatabase string `env:"VAULT_MONGO_DB,  default=sessionkit"`
}

// Load reads configuration from the environment using go-envconfig,
// preloading a .env file when one exists.
func Load() *Config {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
