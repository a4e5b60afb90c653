package main

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config contains all of the configuration for running the service.
type Config struct {
	RedisAddress    string `env:"REDIS_ADDRESS,notEmpty"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	RedisMaxRetries int    `env:"REDIS_MAX_RETRIES" envDefault:"10"`

	ListenAddress string `env:"LISTEN_ADDRESS" envDefault:"0.0.0.0:8080"`

	// CacheTTL is how long fetched pages are cached.
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"10s"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`

	// FlushOnStart removes all keys from the Redis database at startup.
	FlushOnStart bool `env:"FLUSH_ON_START" envDefault:"true"`

	RunDemo  bool     `env:"RUN_DEMO" envDefault:"false"`
	DemoURLs []string `env:"DEMO_URLS" envSeparator:"," envDefault:"http://www.example.com"`
}

func loadConfig() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, errors.Wrap(err, "unable to parse configuration")
	}
	if c.CacheTTL <= 0 {
		return Config{}, errors.New("CACHE_TTL must be positive")
	}
	return c, nil
}
