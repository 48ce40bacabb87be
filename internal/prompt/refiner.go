package prompt

import (
	"context"
	"fmt"
	"strings"
)

// refineSystem instructs the model to condense a free-form illustration
// request into structured retrieval keywords.
const refineSystem = `Extract:
1. Primary medical condition
2. Mechanism keywords
3. Clinical keywords

Return short structured text only.`

// Refiner condenses user requests into retrieval queries.
type Refiner struct {
	llm Completer
}

// NewRefiner creates a Refiner over the given completer.
func NewRefiner(llm Completer) *Refiner {
	return &Refiner{llm: llm}
}

// Refine returns the retrieval query for userRequest. The output is an
// opaque string handed to the search backend; no structure is parsed out
// of it. Errors propagate to the caller for fallback classification.
func (r *Refiner) Refine(ctx context.Context, userRequest string) (string, error) {
	query, err := r.llm.Complete(ctx, refineSystem, userRequest)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRefinement, err)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: model returned empty query", ErrRefinement)
	}
	return query, nil
}
