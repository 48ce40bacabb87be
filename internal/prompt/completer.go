package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"
)

// Completer is the language model contract used by the refiner and the
// synthesizer. Defined here so tests can substitute deterministic stubs.
type Completer interface {
	// Complete sends one system+user exchange and returns the model text.
	Complete(ctx context.Context, system, user string) (string, error)
}

// GenkitCompleter implements Completer over a Genkit instance with the
// Google AI plugin loaded.
type GenkitCompleter struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	maxTokens   int32
}

// NewGenkitCompleter creates a Completer bound to one model. modelName must
// be provider-qualified (e.g. "googleai/gemini-2.5-flash").
func NewGenkitCompleter(g *genkit.Genkit, modelName string, temperature float32, maxTokens int32) *GenkitCompleter {
	return &GenkitCompleter{
		g:           g,
		modelName:   modelName,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Complete implements Completer.
func (c *GenkitCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithSystem(system),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart(user))),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(c.temperature),
			MaxOutputTokens: c.maxTokens,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("model %q returned empty completion", c.modelName)
	}
	return text, nil
}
