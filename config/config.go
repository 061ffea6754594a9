package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type AppConfig struct {
	App struct {
		Name string `env:"APP_NAME" envDefault:"balloon-service"`
		Port string `env:"PORT" envDefault:"6001"`
	}

	Contest struct {
		URL          string        `env:"CONTEST_API_URL,required,notEmpty"`
		User         string        `env:"CONTEST_API_USER"`
		Password     string        `env:"CONTEST_API_PASSWORD"`
		Token        string        `env:"CONTEST_API_TOKEN"`
		PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"7s"`
		FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
	}

	Retry struct {
		BaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
		MaxDelay    time.Duration `env:"RETRY_MAX_DELAY" envDefault:"30s"`
		MaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	}

	Board struct {
		RecentLimit int `env:"RECENT_LIMIT" envDefault:"10"`
	}

	Store struct {
		Backend     string `env:"STORE_BACKEND" envDefault:"memory"`
		SQLitePath  string `env:"SQLITE_PATH" envDefault:"balloons.db"`
		DatabaseURL string `env:"DATABASE_URL"`
	}

	Redis struct {
		Host         string `env:"REDIS_HOST" envDefault:"localhost"`
		Port         int    `env:"REDIS_PORT" envDefault:"6379"`
		Password     string `env:"REDIS_PASSWORD"`
		DB           int    `env:"REDIS_DB" envDefault:"0"`
		DeliveredKey string `env:"REDIS_DELIVERED_KEY" envDefault:"balloons:delivered"`
		SyncEnabled  bool   `env:"REDIS_SYNC_ENABLED" envDefault:"false"`
	}

	Kafka struct {
		Brokers          []string `env:"KAFKA_BROKERS" envSeparator:","`
		DeliveredTopic   string   `env:"KAFKA_DELIVERED_TOPIC" envDefault:"balloon.delivered"`
		PrintResultTopic string   `env:"KAFKA_PRINT_RESULT_TOPIC" envDefault:"print.result"`
		GroupID          string   `env:"KAFKA_GROUP_ID" envDefault:"balloon-service"`
	}

	Print struct {
		WebhookURL string        `env:"PRINT_WEBHOOK_URL"`
		Timeout    time.Duration `env:"PRINT_TIMEOUT" envDefault:"10s"`
	}

	Auth struct {
		JWTSecret       string        `env:"JWT_SECRET,required,notEmpty"`
		RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"120"`
		RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	}

	Log struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
		File   string `env:"LOG_FILE"`
	}
}

// KafkaEnabled reports whether any broker was configured.
func (c *AppConfig) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// Load reads the configuration from the environment. In dev mode a .env file
// in the working directory is loaded first.
func Load(devMode bool) (*AppConfig, error) {
	if devMode {
		if err := godotenv.Load(); err != nil {
			log.Error().Err(err).Msg("Error loading .env file")
		}
	}

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	var errs []error
	if c.Contest.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, errors.New("RETRY_BASE_DELAY must be positive"))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("RETRY_MAX_DELAY must not be below RETRY_BASE_DELAY"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Board.RecentLimit < 1 {
		errs = append(errs, errors.New("RECENT_LIMIT must be at least 1"))
	}
	return errors.Join(errs...)
}
