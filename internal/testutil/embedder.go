package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// SetupEmbedder creates a Google AI embedder for integration tests.
// Skips the test when GEMINI_API_KEY is not set. The model must match the
// 768-dimension passages schema.
func SetupEmbedder(t *testing.T) ai.Embedder {
	t.Helper()

	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set - skipping test requiring embedder")
	}

	g := genkit.Init(context.Background(),
		genkit.WithPlugins(&googlegenai.GoogleAI{}))

	return googlegenai.GoogleAIEmbedder(g, "text-embedding-004")
}
