package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembler_Assemble(t *testing.T) {
	t.Run("joins passages in rank order", func(t *testing.T) {
		searcher := &stubSearcher{results: passageResults("most relevant", "second", "third")}
		a := NewAssembler(searcher)

		got, err := a.Assemble(context.Background(), "coronary occlusion", 3)
		require.NoError(t, err)
		assert.Equal(t, "most relevant\n\nsecond\n\nthird", got)
		assert.Equal(t, "coronary occlusion", searcher.lastQuery)
	})

	t.Run("single passage has no separator", func(t *testing.T) {
		a := NewAssembler(&stubSearcher{results: passageResults("only one")})

		got, err := a.Assemble(context.Background(), "q", 6)
		require.NoError(t, err)
		assert.Equal(t, "only one", got)
	})

	t.Run("zero passages is an error", func(t *testing.T) {
		a := NewAssembler(&stubSearcher{})

		_, err := a.Assemble(context.Background(), "q", 6)
		assert.ErrorIs(t, err, ErrNoPassages)
	})

	t.Run("backend failure wraps ErrRetrieval", func(t *testing.T) {
		a := NewAssembler(&stubSearcher{err: errors.New("index corrupt")})

		_, err := a.Assemble(context.Background(), "q", 6)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRetrieval)
		assert.Contains(t, err.Error(), "index corrupt")
	})

	t.Run("context expiry is preserved in the chain", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		a := NewAssembler(&stubSearcher{waitForCtx: true})
		_, err := a.Assemble(ctx, "q", 6)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRetrieval)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
