// Package config binds the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"bookgpt/backend/internal/core"
	"bookgpt/backend/internal/llm"
	"bookgpt/backend/internal/onboarding"
	"bookgpt/backend/internal/paywall"
	pkgredis "bookgpt/backend/pkg/redis"
	"bookgpt/backend/pkg/tracer"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderEino       = "eino"

	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds every configurable parameter of the server.
type Config struct {
	Env            string   `envconfig:"ENV" default:"development"`
	Port           string   `envconfig:"PORT" default:"8080"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	CloudRunURL    string   `envconfig:"CLOUD_RUN_URL"`
	StaticDir      string   `envconfig:"STATIC_DIR"`

	LLM        LLMConfig
	Breaker    llm.BreakerConfig
	Store      StoreConfig
	Redis      pkgredis.Config
	RateLimit  RateLimitConfig
	Tracing    tracer.Config
	Paywall    paywall.Config
	Onboarding OnboardingConfig
	Wikipedia  onboarding.WikipediaConfig
}

type LLMConfig struct {
	Provider    string        `envconfig:"LLM_PROVIDER" default:"openrouter"`
	APIKey      string        `envconfig:"LLM_API_KEY"`
	Model       string        `envconfig:"LLM_MODEL" default:"anthropic/claude-sonnet-4.6"`
	ImageModel  string        `envconfig:"LLM_IMAGE_MODEL" default:"openai/gpt-5-image"`
	BaseURL     string        `envconfig:"LLM_BASE_URL"`
	Referer     string        `envconfig:"LLM_HTTP_REFERER"`
	AppTitle    string        `envconfig:"LLM_APP_TITLE" default:"BookGPT"`
	Timeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	LogPayloads bool          `envconfig:"LLM_LOG_PAYLOADS" default:"false"`

	SearchTemperature     float32 `envconfig:"LLM_SEARCH_TEMPERATURE" default:"0.2"`
	SearchMaxTokens       int     `envconfig:"LLM_SEARCH_MAX_TOKENS" default:"700"`
	CharactersTemperature float32 `envconfig:"LLM_CHARACTERS_TEMPERATURE" default:"0.2"`
	CharactersMaxTokens   int     `envconfig:"LLM_CHARACTERS_MAX_TOKENS" default:"800"`
	ChatTemperature       float32 `envconfig:"LLM_CHAT_TEMPERATURE" default:"0.7"`
	ChatMaxTokens         int     `envconfig:"LLM_CHAT_MAX_TOKENS" default:"800"`
}

type StoreConfig struct {
	Backend    string        `envconfig:"STORE_BACKEND" default:"memory"`
	SQLitePath string        `envconfig:"STORE_SQLITE_PATH" default:"data/bookgpt.db"`
	TTL        time.Duration `envconfig:"STORE_TTL" default:"720h"`
}

type RateLimitConfig struct {
	ChatPerSecond float64 `envconfig:"RATE_LIMIT_CHAT_RPS" default:"1"`
	ChatBurst     int     `envconfig:"RATE_LIMIT_CHAT_BURST" default:"3"`
	DailyQuota    int64   `envconfig:"RATE_LIMIT_DAILY_QUOTA" default:"1000"`
}

type OnboardingConfig struct {
	ContentPath         string        `envconfig:"ONBOARDING_CONTENT_PATH"`
	Ticks               int           `envconfig:"ONBOARDING_TICKS" default:"20"`
	TickDelay           time.Duration `envconfig:"ONBOARDING_TICK_DELAY" default:"150ms"`
	TestimonialDuration time.Duration `envconfig:"ONBOARDING_TESTIMONIAL_DURATION" default:"1s"`
	SessionIdleTTL      time.Duration `envconfig:"ONBOARDING_SESSION_IDLE_TTL" default:"30m"`
	MaxSessions         int           `envconfig:"ONBOARDING_MAX_SESSIONS" default:"10000"`
}

// Load reads .env.local when present and then processes the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env.local: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenRouter, ProviderGemini, ProviderEino:
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.Store.Backend)
	}
	return nil
}

func (c *Config) Environment() core.Environment {
	return core.ParseEnvironment(c.Env)
}

// Base is the request configuration shared by every use.
func (c LLMConfig) Base() llm.Configuration {
	return llm.Configuration{
		APIKey:      c.APIKey,
		Model:       c.Model,
		ImagePolicy: llm.ImagesDisabled,
	}
}

func (c LLMConfig) Search() llm.Configuration {
	return c.Base().WithTemperature(c.SearchTemperature).WithMaxTokens(c.SearchMaxTokens)
}

func (c LLMConfig) Characters() llm.Configuration {
	return c.Base().WithTemperature(c.CharactersTemperature).WithMaxTokens(c.CharactersMaxTokens)
}

func (c LLMConfig) Chat() llm.Configuration {
	return c.Base().WithTemperature(c.ChatTemperature).WithMaxTokens(c.ChatMaxTokens)
}

func (c OnboardingConfig) Options() onboarding.Options {
	return onboarding.Options{
		Ticks:               c.Ticks,
		TickDelay:           c.TickDelay,
		TestimonialDuration: c.TestimonialDuration,
		IdleTTL:             c.SessionIdleTTL,
		MaxSessions:         c.MaxSessions,
	}
}
