package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefiner_Refine(t *testing.T) {
	t.Run("returns refined query", func(t *testing.T) {
		completer := &stubCompleter{refineOut: "  aortic dissection; intimal tear  "}
		r := NewRefiner(completer)

		query, err := r.Refine(context.Background(), "draw an aortic dissection")
		require.NoError(t, err)
		assert.Equal(t, "aortic dissection; intimal tear", query)

		calls := completer.callList()
		require.Len(t, calls, 1)
		assert.Equal(t, refineSystem, calls[0].system)
		assert.Equal(t, "draw an aortic dissection", calls[0].user)
	})

	t.Run("wraps model errors", func(t *testing.T) {
		r := NewRefiner(&stubCompleter{refineErr: errors.New("rate limited")})

		_, err := r.Refine(context.Background(), "q")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRefinement)
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("rejects empty refinement", func(t *testing.T) {
		r := NewRefiner(&stubCompleter{refineOut: "   "})

		_, err := r.Refine(context.Background(), "q")
		assert.ErrorIs(t, err, ErrRefinement)
	})
}
