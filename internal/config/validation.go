package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Validate checks configuration values and returns the first violation.
// Called from Load(); a failure here is fatal at startup.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if err := c.validateAI(); err != nil {
		return err
	}

	// Retrieval and storage settings only matter when the passage index
	// is in play; direct-only deployments need no PostgreSQL config.
	if c.RetrievalEnabled {
		if err := c.validateRetrieval(); err != nil {
			return err
		}
		if err := c.validateStorage(); err != nil {
			return err
		}
	}
	return c.validateServe()
}

func (c *Config) validateAI() error {
	// The Gemini API key is required by refinement, synthesis, embedding
	// and image generation alike. Without it the service cannot do
	// anything useful, so this is checked before serving.
	if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY or GOOGLE_API_KEY", ErrMissingAPIKey)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name cannot be empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f not in [0, 2]", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 1_000_000 {
		return fmt.Errorf("%w: %d not in [1, 1000000]", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model cannot be empty", ErrInvalidEmbedderModel)
	}
	if strings.TrimSpace(c.ImageModel) == "" {
		return fmt.Errorf("%w: image model cannot be empty", ErrInvalidImageModel)
	}
	return nil
}

func (c *Config) validateRetrieval() error {
	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: %d not in [1, 100]", ErrInvalidTopK, c.TopK)
	}
	if c.RetrievalTimeout < time.Second || c.RetrievalTimeout > 5*time.Minute {
		return fmt.Errorf("%w: %s not in [1s, 5m]", ErrInvalidRetrievalTimeout, c.RetrievalTimeout)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d not in [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: password cannot be empty", ErrInvalidPostgresPassword)
	}

	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}

func (c *Config) validateServe() error {
	if strings.TrimSpace(c.ImagesDir) == "" {
		return fmt.Errorf("%w: directory cannot be empty", ErrInvalidImagesDir)
	}
	return nil
}
