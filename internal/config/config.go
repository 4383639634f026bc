// Package config loads and validates the wobble configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for wobble.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Memory   MemoryConfig   `yaml:"memory"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file, ":memory:" for ephemeral storage.
	Path string `yaml:"path"`
}

// GatewayConfig points at the hosted model gateway used when an agent has no
// BYOK provider configured.
type GatewayConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// Model is the hosted default, served through an OpenAI-compatible API.
	Model string `yaml:"model"`
}

type MemoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// EmbeddingAPIKey authorizes the embeddings endpoint. Falls back to the
	// gateway key when empty.
	EmbeddingAPIKey string `yaml:"embedding_api_key"`
	EmbeddingModel  string `yaml:"embedding_model"`
}

type WebhooksConfig struct {
	// MetaVerifyToken answers Meta's hub.challenge subscription handshake.
	MetaVerifyToken string `yaml:"meta_verify_token"`
	// MetaAppSecret validates X-Hub-Signature-256 on incoming payloads.
	MetaAppSecret string `yaml:"meta_app_secret"`
	// TelegramSecretToken validates X-Telegram-Bot-Api-Secret-Token.
	TelegramSecretToken string `yaml:"telegram_secret_token"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file. Environment variables in the
// file are expanded before parsing, so secrets can be written as ${VAR}.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := expandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv expands ${VAR} and ${VAR:-default} references. Unset variables
// without a default expand to the empty string, matching shell behavior.
func expandEnv(s string) string {
	return os.Expand(s, func(ref string) string {
		name, fallback, hasDefault := strings.Cut(ref, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return fallback
		}
		return ""
	})
}

// Default returns a configuration usable without a config file, driven
// entirely by environment variables.
func Default() *Config {
	cfg := &Config{
		Gateway: GatewayConfig{
			APIKey: os.Getenv("WOBBLE_GATEWAY_API_KEY"),
		},
		Memory: MemoryConfig{
			Enabled:         true,
			EmbeddingAPIKey: os.Getenv("WOBBLE_EMBEDDING_API_KEY"),
		},
		Webhooks: WebhooksConfig{
			MetaVerifyToken:     os.Getenv("WOBBLE_META_VERIFY_TOKEN"),
			MetaAppSecret:       os.Getenv("WOBBLE_META_APP_SECRET"),
			TelegramSecretToken: os.Getenv("WOBBLE_TELEGRAM_SECRET_TOKEN"),
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "wobble.db"
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "https://ai.gateway.lovable.dev/v1"
	}
	if cfg.Gateway.Model == "" {
		cfg.Gateway.Model = "google/gemini-2.5-flash"
	}
	if cfg.Memory.EmbeddingModel == "" {
		cfg.Memory.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	return nil
}
