package config

import (
	"crypto/sha256"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	DatabasePath string `env:"ONEBOX_DATABASE_PATH" envDefault:"data/onebox.db"`
	APIPort      string `env:"ONEBOX_API_PORT" envDefault:"8080"`
	CORSOrigins  string `env:"ONEBOX_CORS_ORIGINS" envDefault:"*"`

	// Encryption key for mailbox passwords stored at rest
	EncryptionKey string `env:"ONEBOX_ENCRYPTION_KEY" envDefault:"onebox-default-secret-change-in-production"`

	// AI inference (OpenAI-compatible chat completions API)
	AIAPIKey    string `env:"ONEBOX_AI_API_KEY"`
	AIBaseURL   string `env:"ONEBOX_AI_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	AIChatModel string `env:"ONEBOX_AI_CHAT_MODEL" envDefault:"openai/gpt-oss-20b"`

	// Embeddings for reply-suggestion retrieval (may use a different provider)
	EmbeddingAPIKey  string `env:"ONEBOX_EMBEDDING_API_KEY"`
	EmbeddingBaseURL string `env:"ONEBOX_EMBEDDING_BASE_URL" envDefault:"https://api.openai.com/v1"`
	EmbeddingModel   string `env:"ONEBOX_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`

	// Notification sinks, both optional
	SlackWebhookURL    string `env:"ONEBOX_SLACK_WEBHOOK_URL"`
	ExternalWebhookURL string `env:"ONEBOX_WEBHOOK_URL"`

	// Logging
	LogLevel  string `env:"ONEBOX_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ONEBOX_LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from a .env file (if present) and the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// GetEncryptionKey returns the 32-byte AES-256 key derived from the configured secret
func (c *Config) GetEncryptionKey() []byte {
	hash := sha256.Sum256([]byte(c.EncryptionKey))
	return hash[:]
}
