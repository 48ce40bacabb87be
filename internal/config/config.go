// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.medsketch/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: language model, temperature, embedder, image model
//   - Retrieval: top-k passage count, bounded retrieval wait, on/off switch
//   - Storage: PostgreSQL connection for the passage index (see storage.go)
//   - Serve: generated image directory, rate limiting
//
// Security: the PostgreSQL password is never logged; MarshalJSON masks it.
// Validation lives in validation.go and runs fail-fast inside Load() —
// a broken configuration is fatal before any request is served.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the language model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidImageModel indicates the image generation model is invalid.
	ErrInvalidImageModel = errors.New("invalid image model")

	// ErrInvalidTopK indicates the top-k passage count is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidRetrievalTimeout indicates the retrieval timeout is out of range.
	ErrInvalidRetrievalTimeout = errors.New("invalid retrieval timeout")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidImagesDir indicates the generated image directory is invalid.
	ErrInvalidImagesDir = errors.New("invalid images directory")
)

const (
	// DefaultModelName is the default language model for refinement and
	// prompt synthesis.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultEmbedderModel is the default Gemini embedder model. Its
	// 768-dimension output must match the pgvector schema in db/migrations.
	DefaultEmbedderModel = "text-embedding-004"

	// DefaultImageModel is the default Gemini image generation model.
	DefaultImageModel = "gemini-3-pro-image-preview"

	// DefaultTopK is the default number of passages assembled into
	// retrieval context.
	DefaultTopK = 6

	// DefaultRetrievalTimeout bounds how long one request waits on the
	// passage index. Generous enough to tolerate a cold-starting backend.
	DefaultRetrievalTimeout = 20 * time.Second
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Embedding and image generation models
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	ImageModel    string `mapstructure:"image_model" json:"image_model"`

	// Retrieval configuration
	TopK             int           `mapstructure:"top_k" json:"top_k"`
	RetrievalTimeout time.Duration `mapstructure:"retrieval_timeout" json:"retrieval_timeout"`
	RetrievalEnabled bool          `mapstructure:"retrieval_enabled" json:"retrieval_enabled"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Serve configuration
	ImagesDir      string  `mapstructure:"images_dir" json:"images_dir"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Observability configuration (optional OTLP trace export)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".medsketch")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL takes priority over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail fast: a broken configuration must surface before any request.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults. Temperature is deliberately low: prompt construction
	// should stay close to the retrieved clinical material.
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", 0.1)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("image_model", DefaultImageModel)

	// Retrieval defaults
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("retrieval_timeout", DefaultRetrievalTimeout)
	viper.SetDefault("retrieval_enabled", true)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "medsketch")
	viper.SetDefault("postgres_password", "medsketch_dev_password")
	viper.SetDefault("postgres_db_name", "medsketch")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Serve defaults
	viper.SetDefault("images_dir", "generated_images")
	viper.SetDefault("rate_limit_rps", 5.0)
	viper.SetDefault("rate_limit_burst", 10)

	// Observability defaults (empty endpoint = tracing disabled)
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("service_name", "medsketch")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variable overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit and the genai client, not via
// Viper; Validate() only checks its presence.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "MEDSKETCH_PROVIDER")
	mustBind("model_name", "MEDSKETCH_MODEL_NAME")
	mustBind("embedder_model", "MEDSKETCH_EMBEDDER_MODEL")
	mustBind("image_model", "MEDSKETCH_IMAGE_MODEL")
	mustBind("top_k", "MEDSKETCH_TOP_K")
	mustBind("retrieval_timeout", "MEDSKETCH_RETRIEVAL_TIMEOUT")
	mustBind("retrieval_enabled", "MEDSKETCH_RETRIEVAL_ENABLED")
	mustBind("images_dir", "MEDSKETCH_IMAGES_DIR")
	mustBind("otlp_endpoint", "MEDSKETCH_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 chars or
// fewer are fully masked; longer secrets keep the first and last two
// characters for debug utility. This defends against accidental logging,
// not against compromised logs — rotate secrets if logs leak.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Example: "googleai/gemini-2.5-flash". If ModelName already contains a
// "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return ProviderGoogleAI + "/" + c.ModelName
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
