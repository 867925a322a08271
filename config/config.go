package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port     string
	GinMode  string
	LogLevel string
	// InstanceID tags relayed events so an instance can skip its own.
	InstanceID string

	DB struct {
		Driver string
		DSN    string
	}

	Auth struct {
		JWTSecret     string
		TokenTTL      time.Duration
		AdminEmail    string
		AdminPassword string
	}

	HTTP struct {
		CORSOrigin     string
		RateLimitRPS   float64
		RateLimitBurst int
	}

	Tracker struct {
		ReviewPromptDelay time.Duration
		DefaultItemPrep   time.Duration
		DeliveryBuffer    time.Duration
		SessionSendBuffer int
		SinkQueueSize     int
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
		Channel  string
	}

	AMQP struct {
		URL      string
		Exchange string
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("INSTANCE_ID", "")

	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "order_tracker.db")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")

	v.SetDefault("CORS_ORIGIN", "http://127.0.0.1:5500")
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	v.SetDefault("REVIEW_PROMPT_DELAY", "2m")
	v.SetDefault("ETA_DEFAULT_ITEM_PREP", "10m")
	v.SetDefault("ETA_DELIVERY_BUFFER", "5m")
	v.SetDefault("SESSION_SEND_BUFFER", 32)
	v.SetDefault("SINK_QUEUE_SIZE", 256)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CHANNEL", "order_status_updates")

	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "order_status_fanout")
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	envErr := godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	cfg.Port = v.GetString("PORT")
	cfg.GinMode = v.GetString("GIN_MODE")
	cfg.LogLevel = v.GetString("LOG_LEVEL")
	cfg.InstanceID = v.GetString("INSTANCE_ID")
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	cfg.DB.Driver = v.GetString("DB_DRIVER")
	cfg.DB.DSN = v.GetString("DB_DSN")

	cfg.Auth.JWTSecret = v.GetString("JWT_SECRET")
	cfg.Auth.TokenTTL = v.GetDuration("TOKEN_TTL")
	cfg.Auth.AdminEmail = v.GetString("ADMIN_EMAIL")
	cfg.Auth.AdminPassword = v.GetString("ADMIN_PASSWORD")

	cfg.HTTP.CORSOrigin = v.GetString("CORS_ORIGIN")
	cfg.HTTP.RateLimitRPS = v.GetFloat64("RATE_LIMIT_RPS")
	cfg.HTTP.RateLimitBurst = v.GetInt("RATE_LIMIT_BURST")

	cfg.Tracker.ReviewPromptDelay = v.GetDuration("REVIEW_PROMPT_DELAY")
	cfg.Tracker.DefaultItemPrep = v.GetDuration("ETA_DEFAULT_ITEM_PREP")
	cfg.Tracker.DeliveryBuffer = v.GetDuration("ETA_DELIVERY_BUFFER")
	cfg.Tracker.SessionSendBuffer = v.GetInt("SESSION_SEND_BUFFER")
	cfg.Tracker.SinkQueueSize = v.GetInt("SINK_QUEUE_SIZE")

	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.Channel = v.GetString("REDIS_CHANNEL")

	cfg.AMQP.URL = v.GetString("AMQP_URL")
	cfg.AMQP.Exchange = v.GetString("AMQP_EXCHANGE")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if envErr != nil {
		return &cfg, fmt.Errorf("%w: %v", ErrNoEnvFile, envErr)
	}
	return &cfg, nil
}

// ErrNoEnvFile is returned together with a usable config when .env is absent.
var ErrNoEnvFile = errors.New(".env not loaded")

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.GinMode == "release" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when GIN_MODE=release")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.Tracker.DefaultItemPrep <= 0 || c.Tracker.DeliveryBuffer <= 0 {
		return fmt.Errorf("ETA durations must be positive")
	}
	if c.Tracker.ReviewPromptDelay < 0 {
		return fmt.Errorf("REVIEW_PROMPT_DELAY must not be negative")
	}
	if c.Tracker.SessionSendBuffer <= 0 {
		return fmt.Errorf("SESSION_SEND_BUFFER must be positive")
	}
	if c.Tracker.SinkQueueSize <= 0 {
		return fmt.Errorf("SINK_QUEUE_SIZE must be positive")
	}
	if c.HTTP.RateLimitRPS <= 0 || c.HTTP.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	return nil
}
