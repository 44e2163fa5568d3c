package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Core
	BotToken string `env:"BOT_TOKEN,required"`

	// Chat provider (OpenAI-compatible)
	ChatBaseURL string `env:"CHAT_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	ChatAPIKey  string `env:"CHAT_API_KEY"`
	ChatModel   string `env:"CHAT_MODEL" envDefault:"google/gemini-2.5-flash"`

	// Image provider
	ImageBackend string `env:"IMAGE_BACKEND" envDefault:"openai"`
	ImageBaseURL string `env:"IMAGE_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	ImageAPIKey  string `env:"IMAGE_API_KEY"`
	ImageModel   string `env:"IMAGE_MODEL" envDefault:"gemini-2.5-flash-image"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`

	// Storage
	StoreBackend    string `env:"STORE_BACKEND" envDefault:"memory"`
	BadgerDir       string `env:"BADGER_DIR" envDefault:"./data/badger"`
	DatabaseURL     string `env:"DATABASE_URL"`
	StoreQuotaBytes int    `env:"STORE_QUOTA_BYTES" envDefault:"5242880"`

	// Prompts
	PromptsFile string `env:"PROMPTS_FILE"`

	// Usage accounting, USD per million tokens
	ShowCost            bool    `env:"SHOW_COST" envDefault:"false"`
	ChatPromptPrice     float64 `env:"CHAT_PROMPT_PRICE" envDefault:"0"`
	ChatCompletionPrice float64 `env:"CHAT_COMPLETION_PRICE" envDefault:"0"`

	// Bot behavior
	DropPendingUpdates bool `env:"BOT_DROP_PENDING_UPDATES" envDefault:"false"`
	RateLimitPerMinute int  `env:"RATE_LIMIT_PER_MINUTE" envDefault:"20"`

	// Logging
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`

	// Telegram ops logging
	OpsChatID     int64 `env:"OPS_CHAT_ID"`
	OpsTopicError int   `env:"OPS_TOPIC_ERROR"`
	OpsTopicImage int   `env:"OPS_TOPIC_IMAGE"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	switch cfg.StoreBackend {
	case StoreMemory, StoreBadger:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("parse config: DATABASE_URL is required for store backend %q", cfg.StoreBackend)
		}
	default:
		return nil, fmt.Errorf("parse config: unknown store backend %q", cfg.StoreBackend)
	}
	switch cfg.ImageBackend {
	case ImageBackendOpenAI, ImageBackendGemini:
	default:
		return nil, fmt.Errorf("parse config: unknown image backend %q", cfg.ImageBackend)
	}
	return cfg, nil
}

// ChatConfigured reports whether the chat provider has credentials.
func (c *Config) ChatConfigured() bool {
	return c.ChatAPIKey != "" && c.ChatBaseURL != ""
}

// ImageConfigured reports whether the selected image backend has credentials.
func (c *Config) ImageConfigured() bool {
	if c.ImageBackend == ImageBackendGemini {
		return c.GeminiAPIKey != ""
	}
	return c.ImageAPIKey != "" && c.ImageBaseURL != ""
}

func (c *Config) PromptPrice() decimal.Decimal {
	return decimal.NewFromFloat(c.ChatPromptPrice)
}

func (c *Config) CompletionPrice() decimal.Decimal {
	return decimal.NewFromFloat(c.ChatCompletionPrice)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
