package prompt

import (
	"context"
	"fmt"
	"strings"
)

// Synthesizer produces the final image generation prompt.
type Synthesizer struct {
	llm Completer
}

// NewSynthesizer creates a Synthesizer over the given completer.
func NewSynthesizer(llm Completer) *Synthesizer {
	return &Synthesizer{llm: llm}
}

// Synthesize generates the image prompt for question under the caller's
// system instruction. A non-empty retrievalContext selects the grounded
// construction message; an empty one selects the direct request. The
// instruction is passed through verbatim as the system role in both modes.
func (s *Synthesizer) Synthesize(ctx context.Context, instruction, question, retrievalContext string) (string, error) {
	var user string
	if retrievalContext != "" {
		user = fmt.Sprintf(`Retrieved High-Yield Medical Context:
%s

User Request:
%s

Return a complete structured image generation prompt following the system instruction guidelines.`,
			retrievalContext, question)
	} else {
		user = "Create a detailed medical illustration prompt for: " + question
	}

	out, err := s.llm.Complete(ctx, instruction, user)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: model returned empty prompt", ErrSynthesis)
	}
	return out, nil
}
