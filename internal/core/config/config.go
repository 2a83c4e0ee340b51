package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	StoreDriver string // "postgres" or "memory"
	DatabaseURL string
	DBMaxConns  int

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	EventSink      string // "amqp", "webhook" or "log"
	AMQPURL        string
	EventExchange  string
	ConsumerQueue  string
	WebhookURL     string
	PublishTimeout time.Duration

	RedisAddr       string
	RateLimitMax    int
	RateLimitWindow time.Duration
	IdempotencyTTL  time.Duration
}

// LoadConfig reads an optional .env file, then the process environment.
// The bool result reports whether a .env file was found.
func LoadConfig() (*Config, bool) {
	found := godotenv.Load() == nil

	cfg := &Config{
		Port:     getEnv("PORT", "3000"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),

		JWTSecret:  getEnv("JWT_SECRET", ""),
		TokenTTL:   getEnvDuration("TOKEN_TTL", 24*time.Hour),
		BcryptCost: getEnvInt("BCRYPT_COST", 0),

		AMQPURL:        getEnv("AMQP_URL", ""),
		EventExchange:  getEnv("EVENT_EXCHANGE", "gobank.events"),
		ConsumerQueue:  getEnv("CONSUMER_QUEUE", "transaction-group"),
		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		PublishTimeout: getEnvDuration("PUBLISH_TIMEOUT", 5*time.Second),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 20),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		IdempotencyTTL:  getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
	}
	cfg.EventSink = getEnv("EVENT_SINK", defaultSink(cfg))
	return cfg, found
}

func defaultSink(cfg *Config) string {
	switch {
	case cfg.AMQPURL != "":
		return "amqp"
	case cfg.WebhookURL != "":
		return "webhook"
	default:
		return "log"
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate reports settings that would make the server unusable or unsafe.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	case "memory":
	default:
		errs = append(errs, errors.New("STORE_DRIVER must be postgres or memory"))
	}

	if c.JWTSecret == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		} else {
			c.JWTSecret = "gobank-dev-secret"
		}
	}

	switch c.EventSink {
	case "amqp":
		if c.AMQPURL == "" {
			errs = append(errs, errors.New("AMQP_URL is required when EVENT_SINK=amqp"))
		}
	case "webhook":
		if c.WebhookURL == "" {
			errs = append(errs, errors.New("WEBHOOK_URL is required when EVENT_SINK=webhook"))
		}
	case "log":
	default:
		errs = append(errs, errors.New("EVENT_SINK must be amqp, webhook or log"))
	}

	return errors.Join(errs...)
}

// Helper to get env with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
