// Package imagegen renders generated prompts into PNG images through the
// Gemini image API and serves them from a local directory.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/medsketch/medsketch/internal/log"
)

// ErrNoImage indicates the model response carried no image data.
var ErrNoImage = errors.New("no image in model response")

// ContentGenerator is the Gemini API surface the generator consumes.
// Satisfied by genai.Client.Models; tests substitute a stub.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Image describes one generated and saved image.
type Image struct {
	Filename string
	Path     string
}

// Generator turns prompts into PNG files under a fixed directory.
type Generator struct {
	models ContentGenerator
	model  string
	dir    string
	logger log.Logger
}

// NewClient builds the genai client for the Gemini API. The API key comes
// from GEMINI_API_KEY (validated at startup).
func NewClient(ctx context.Context) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing genai client: %w", err)
	}
	return client, nil
}

// New creates a Generator writing PNGs into dir, creating it if needed.
func New(models ContentGenerator, model, dir string, logger log.Logger) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating images directory: %w", err)
	}
	return &Generator{
		models: models,
		model:  model,
		dir:    dir,
		logger: logger,
	}, nil
}

// Generate renders prompt into a PNG and returns its filename. The model
// may interleave text parts with the image; the first inline image wins.
func (g *Generator) Generate(ctx context.Context, prompt string) (*Image, error) {
	g.logger.Debug("generating image", "model", g.model, "prompt_length", len(prompt))

	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, nil)
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	data, err := extractImage(resp)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("image_%s_%s.png",
		time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	path := filepath.Join(g.dir, filename)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return nil, fmt.Errorf("saving image: %w", err)
	}

	g.logger.Info("image saved", "filename", filename, "bytes", len(data))
	return &Image{Filename: filename, Path: path}, nil
}

// Open returns the on-disk path for a previously generated image. The
// filename is validated against path traversal before touching the
// filesystem.
func (g *Generator) Open(filename string) (string, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	path := filepath.Join(g.dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("image %q: %w", filename, err)
	}
	return path, nil
}

// Dir returns the directory images are written to.
func (g *Generator) Dir() string {
	return g.dir
}

// ValidateFilename rejects names that could escape the images directory or
// reference anything but a generated PNG.
func ValidateFilename(filename string) error {
	if filename == "" {
		return errors.New("empty filename")
	}
	if strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		return fmt.Errorf("invalid filename %q", filename)
	}
	if filepath.Base(filename) != filename {
		return fmt.Errorf("invalid filename %q", filename)
	}
	if !strings.HasSuffix(filename, ".png") {
		return fmt.Errorf("unsupported image type in %q", filename)
	}
	return nil
}

func extractImage(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrNoImage
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}
	return nil, ErrNoImage
}
