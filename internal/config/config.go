package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config process configuration
type Config struct {
	// Accounts
	AccountsFile string `env:"ACCOUNTS_FILE" envDefault:"./config/accounts.yaml"`

	// Telegram relay (optional)
	TelegramToken   string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID  int64   `env:"TELEGRAM_CHAT_ID"`
	TelegramTopicID int     `env:"TELEGRAM_TOPIC_ID"`
	TelegramRate    float64 `env:"TELEGRAM_RATE" envDefault:"1"` // messages per second

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/emailchannel.db"`

	// Webhook dispatcher (optional)
	WebhookURL     string        `env:"WEBHOOK_URL"`
	WebhookToken   string        `env:"WEBHOOK_TOKEN"`
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"60s"`

	// Email
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	SMTPDialTimeout time.Duration `env:"SMTP_DIAL_TIMEOUT" envDefault:"30s"`

	// Metrics
	MetricsAddr string `env:"METRICS_ADDR"` // e.g., :9090

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
	LogFile   string `env:"LOG_FILE"`                     // rotated file instead of stdout
}

// TelegramEnabled returns true if the Telegram relay is configured
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// WebhookEnabled returns true if the webhook dispatcher is configured
func (c *Config) WebhookEnabled() bool {
	return c.WebhookURL != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if cfg.TelegramRate <= 0 {
		return nil, fmt.Errorf("TELEGRAM_RATE must be positive, got %v", cfg.TelegramRate)
	}

	return cfg, nil
}
