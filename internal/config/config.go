package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "MOVEE"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "movee.db"
	defaultLogLevel       = "info"
	defaultPresenceTTL    = 90
	defaultStreamBuffer   = 16
	defaultSweepInterval  = 30
	defaultRateLimitBurst = 20
	defaultRateLimitRate  = 5
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	SigningSecret      string
	PresenceTTL        time.Duration
	PresenceSweepEvery time.Duration
	StreamBufferSize   int
	RedisAddress       string
	RateLimitBurst     int
	RateLimitPerSecond int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("presence.ttl_seconds", defaultPresenceTTL)
	configViper.SetDefault("presence.sweep_seconds", defaultSweepInterval)
	configViper.SetDefault("stream.buffer_size", defaultStreamBuffer)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("ratelimit.burst", defaultRateLimitBurst)
	configViper.SetDefault("ratelimit.per_second", defaultRateLimitRate)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		PresenceTTL:        time.Duration(configViper.GetInt("presence.ttl_seconds")) * time.Second,
		PresenceSweepEvery: time.Duration(configViper.GetInt("presence.sweep_seconds")) * time.Second,
		StreamBufferSize:   configViper.GetInt("stream.buffer_size"),
		RedisAddress:       configViper.GetString("redis.address"),
		RateLimitBurst:     configViper.GetInt("ratelimit.burst"),
		RateLimitPerSecond: configViper.GetInt("ratelimit.per_second"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.PresenceTTL <= 0 {
		return fmt.Errorf("presence.ttl_seconds must be positive")
	}
	if c.StreamBufferSize <= 0 {
		return fmt.Errorf("stream.buffer_size must be positive")
	}
	return nil
}
