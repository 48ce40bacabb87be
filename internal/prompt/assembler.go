package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/medsketch/medsketch/internal/passage"
)

// Searcher is the retrieval contract the assembler consumes. Satisfied by
// *passage.Store.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...passage.SearchOption) ([]passage.Result, error)
}

// Assembler turns search results into a single context block.
type Assembler struct {
	searcher Searcher
}

// NewAssembler creates an Assembler over the given searcher.
func NewAssembler(searcher Searcher) *Assembler {
	return &Assembler{searcher: searcher}
}

// Assemble searches for the top k passages matching query and joins their
// contents with blank lines, preserving rank order. Zero matches is an
// error, not an empty context: the pipeline must know retrieval found
// nothing so it can take the direct branch instead of synthesizing against
// a silently empty context.
func (a *Assembler) Assemble(ctx context.Context, query string, k int) (string, error) {
	results, err := a.searcher.Search(ctx, query, passage.WithTopK(k))
	if err != nil {
		if ctx.Err() != nil {
			// Preserve the context error so the pipeline can classify
			// timeout separately from backend failure.
			return "", fmt.Errorf("%w: %w", ErrRetrieval, ctx.Err())
		}
		return "", fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	if len(results) == 0 {
		return "", ErrNoPassages
	}

	contents := make([]string, 0, len(results))
	for _, r := range results {
		contents = append(contents, r.Passage.Content)
	}
	return strings.Join(contents, "\n\n"), nil
}
