package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// resy
	Email       string
	Password    string
	APIKey      string
	BaseURL     string
	HTTPTimeout time.Duration

	// swipe timing defaults; a request file or flags may override them
	Lead        time.Duration
	PollWindow  time.Duration
	RetryWindow time.Duration

	// optional sinks
	DatabaseURL    string
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
	MetricsAddr    string

	Debug bool
}

// FromEnv reads the process environment, after loading a .env file from the
// working directory when one exists. Variables already set win over .env.
func FromEnv() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Email:          strings.TrimSpace(os.Getenv("RESY_EMAIL")),
		Password:       os.Getenv("RESY_PASSWORD"),
		APIKey:         strings.TrimSpace(os.Getenv("RESY_API_KEY")),
		BaseURL:        getenv("RESY_BASE_URL", "https://api.resy.com"),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AMQPURL:        strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPExchange:   getenv("AMQP_EXCHANGE", "reservations"),
		AMQPRoutingKey: getenv("AMQP_ROUTING_KEY", "reservation.swiped"),
		MetricsAddr:    strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		Debug:          getenv("LOG_DEBUG", "0") == "1",
	}

	var err error
	if cfg.HTTPTimeout, err = envDuration("RESY_HTTP_TIMEOUT_MS", "3000", time.Millisecond, 1); err != nil {
		return Config{}, err
	}
	if cfg.Lead, err = envDuration("SWIPE_LEAD_MS", "250", time.Millisecond, 0); err != nil {
		return Config{}, err
	}
	if cfg.PollWindow, err = envDuration("SWIPE_POLL_WINDOW_SECONDS", "10", time.Second, 0); err != nil {
		return Config{}, err
	}
	if cfg.RetryWindow, err = envDuration("SWIPE_RETRY_WINDOW_SECONDS", "2", time.Second, 0); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequireResy fails unless everything needed to talk to the API is set.
func (c Config) RequireResy(withLogin bool) error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "RESY_API_KEY")
	}
	if withLogin {
		if c.Email == "" {
			missing = append(missing, "RESY_EMAIL")
		}
		if c.Password == "" {
			missing = append(missing, "RESY_PASSWORD")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s required", strings.Join(missing, ", "))
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func envDuration(k, def string, unit time.Duration, min int) (time.Duration, error) {
	n, err := strconv.Atoi(getenv(k, def))
	if err != nil || n < min {
		return 0, fmt.Errorf("invalid %s (want an integer >= %d)", k, min)
	}
	return time.Duration(n) * unit, nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
