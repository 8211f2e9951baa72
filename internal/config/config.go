// Package config loads storefront and backend settings: built-in defaults,
// then a YAML file, then BREW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. BREW_API_BASE_URL.
const EnvPrefix = "BREW_"

// Config is the configuration of both binaries.
type Config struct {
	API     API     `yaml:"api" envPrefix:"API_"`
	Log     Log     `yaml:"log" envPrefix:"LOG_"`
	Sync    Sync    `yaml:"sync" envPrefix:"SYNC_"`
	Backend Backend `yaml:"backend" envPrefix:"BACKEND_"`
}

// API configures the storefront's REST client.
type API struct {
	BaseURL       string        `yaml:"base_url" env:"BASE_URL" validate:"required,url"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
	RetryMaxTries uint          `yaml:"retry_max_tries" env:"RETRY_MAX_TRIES" validate:"gte=1,lte=10"`
}

// Log selects the logging stack.
type Log struct {
	Driver string `yaml:"driver" env:"DRIVER" validate:"oneof=slog zap logrus"`
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=text json"`
}

// Sync holds the query policies of the storefront.
type Sync struct {
	MenuStaleTime         time.Duration `yaml:"menu_stale_time" env:"MENU_STALE_TIME" validate:"gte=0"`
	OrdersRefetchInterval time.Duration `yaml:"orders_refetch_interval" env:"ORDERS_REFETCH_INTERVAL" validate:"gte=0"`
	GenRetention          time.Duration `yaml:"gen_retention" env:"GEN_RETENTION" validate:"gte=0"`
	// HookQueue > 0 delivers hook events through an async queue of that size.
	HookQueue int `yaml:"hook_queue" env:"HOOK_QUEUE" validate:"gte=0"`
	// HookSampleEvery samples fetch-start and dedupe events; 0/1 = log all.
	HookSampleEvery uint64 `yaml:"hook_sample_every" env:"HOOK_SAMPLE_EVERY"`
}

// Backend configures the development order service.
type Backend struct {
	Addr            string        `yaml:"addr" env:"ADDR" validate:"required"`
	Provider        string        `yaml:"provider" env:"PROVIDER" validate:"oneof=ristretto bigcache redis"`
	Codec           string        `yaml:"codec" env:"CODEC" validate:"oneof=json msgpack cbor"`
	MaxDecode       int           `yaml:"max_decode" env:"MAX_DECODE" validate:"gte=0"`
	Namespace       string        `yaml:"namespace" env:"NAMESPACE" validate:"required"`
	BrewStep        time.Duration `yaml:"brew_step" env:"BREW_STEP" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`

	RedisAddr string `yaml:"redis_addr" env:"REDIS_ADDR" validate:"required_if=Provider redis"`
	RedisDB   int    `yaml:"redis_db" env:"REDIS_DB" validate:"gte=0"`

	Ristretto Ristretto `yaml:"ristretto" envPrefix:"RISTRETTO_"`
	BigCache  BigCache  `yaml:"bigcache" envPrefix:"BIGCACHE_"`
}

type Ristretto struct {
	NumCounters int64 `yaml:"num_counters" env:"NUM_COUNTERS" validate:"gt=0"`
	MaxCost     int64 `yaml:"max_cost" env:"MAX_COST" validate:"gt=0"`
	BufferItems int64 `yaml:"buffer_items" env:"BUFFER_ITEMS" validate:"gt=0"`
}

type BigCache struct {
	LifeWindow         time.Duration `yaml:"life_window" env:"LIFE_WINDOW" validate:"gt=0"`
	HardMaxCacheSizeMB int           `yaml:"hard_max_cache_size_mb" env:"HARD_MAX_CACHE_SIZE_MB" validate:"gte=0"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		API: API{
			BaseURL:       "http://localhost:9000",
			Timeout:       5 * time.Second,
			RetryMaxTries: 3,
		},
		Log: Log{Driver: "slog", Level: "info", Format: "text"},
		Sync: Sync{
			MenuStaleTime:         5 * time.Minute,
			OrdersRefetchInterval: 10 * time.Second,
			GenRetention:          24 * time.Hour,
		},
		Backend: Backend{
			Addr:            ":9000",
			Provider:        "ristretto",
			Codec:           "json",
			MaxDecode:       1 << 20,
			Namespace:       "dev",
			BrewStep:        3 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RedisAddr:       "localhost:6379",
			Ristretto:       Ristretto{NumCounters: 1e5, MaxCost: 64 << 20, BufferItems: 64},
			BigCache:        BigCache{LifeWindow: 24 * time.Hour},
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result. A path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load for mains: it exits the process on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %s", err)
	}
	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
