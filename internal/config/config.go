package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Like broadcast modes.
const (
	LikeBroadcastDelta = "delta"
	LikeBroadcastFull  = "full"
)

// Config holds the runtime settings of the service.
type Config struct {
	Port           string
	Env            string
	RedisAddr      string
	RedisPoolSize  int
	AMQPURL        string
	AMQPExchange   string
	AuditRouting   string
	JWTSecret      string
	LikeBroadcast  string
	RateLimitRPS   float64
	RateLimitBurst int
	OTLPEndpoint   string
	DebugRoutes    bool
}

// Load reads .env when present and resolves configuration from the
// environment on top of defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		Port:           v.GetString("PORT"),
		Env:            v.GetString("ENV"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		RedisPoolSize:  v.GetInt("REDIS_POOL_SIZE"),
		AMQPURL:        v.GetString("AMQP_URL"),
		AMQPExchange:   v.GetString("AMQP_EXCHANGE"),
		AuditRouting:   v.GetString("AUDIT_ROUTING_KEY"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		LikeBroadcast:  strings.ToLower(v.GetString("LIKE_BROADCAST")),
		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
		OTLPEndpoint:   v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		DebugRoutes:    v.GetBool("DEBUG_ROUTES"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8083")
	v.SetDefault("ENV", "development")
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "dm.events")
	v.SetDefault("AUDIT_ROUTING_KEY", "audit.dm")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("LIKE_BROADCAST", LikeBroadcastDelta)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("DEBUG_ROUTES", false)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.LikeBroadcast != LikeBroadcastDelta && c.LikeBroadcast != LikeBroadcastFull {
		return fmt.Errorf("LIKE_BROADCAST must be %q or %q, got %q", LikeBroadcastDelta, LikeBroadcastFull, c.LikeBroadcast)
	}
	if c.RedisPoolSize <= 0 {
		return fmt.Errorf("REDIS_POOL_SIZE must be positive, got %d", c.RedisPoolSize)
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
