package passage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsketch/medsketch/internal/log"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	delay         time.Duration
	embedErr      error
	returnEmpty   bool
	embeddings    []float32
	callCount     int
	lastInputText string
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(r api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.lastInputText = req.Input[0].Content[0].Text
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.returnEmpty {
		return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: []float32{}}}}, nil
	}
	embedding := m.embeddings
	if embedding == nil {
		embedding = []float32{0.1, 0.2, 0.3}
	}
	return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: embedding}}}, nil
}

// rowData is one canned search result row.
type rowData struct {
	id         string
	content    string
	metadata   map[string]string
	createdAt  time.Time
	similarity float32
}

// fakeRows implements pgx.Rows over canned row data.
type fakeRows struct {
	rows    []rowData
	idx     int
	scanErr error
	rowErr  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.rowErr }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.rows[r.idx-1]
	metadataJSON, err := json.Marshal(row.metadata)
	if err != nil {
		return err
	}
	*dest[0].(*string) = row.id
	*dest[1].(*string) = row.content
	*dest[2].(*[]byte) = metadataJSON
	*dest[3].(*time.Time) = row.createdAt
	*dest[4].(*float32) = row.similarity
	return nil
}

// fakeRow implements pgx.Row for Count queries.
type fakeRow struct {
	count   int64
	scanErr error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	*dest[0].(*int64) = r.count
	return nil
}

// mockQuerier implements Querier with canned responses and call tracking.
type mockQuerier struct {
	execErr  error
	queryErr error
	rows     []rowData
	count    int64

	execCalls    int
	queryCalls   int
	lastExecSQL  string
	lastExecArgs []any
	rowsAffected int64
}

func (m *mockQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execCalls++
	m.lastExecSQL = sql
	m.lastExecArgs = args
	if m.execErr != nil {
		return pgconn.CommandTag{}, m.execErr
	}
	return pgconn.NewCommandTag("DELETE " + itoa(m.rowsAffected)), nil
}

func (m *mockQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	m.queryCalls++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return &fakeRows{rows: m.rows}, nil
}

func (m *mockQuerier) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return &fakeRow{count: m.count}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func newTestStore(q Querier, e ai.Embedder) *Store {
	return New(q, e, log.NewNop())
}

func TestStore_Add(t *testing.T) {
	t.Run("embeds and upserts", func(t *testing.T) {
		querier := &mockQuerier{}
		embedder := &mockEmbedder{}
		store := newTestStore(querier, embedder)

		err := store.Add(context.Background(), Passage{
			ID:      "chunk_abc",
			Content: "Myocardial infarction results from coronary occlusion.",
			Metadata: map[string]string{
				MetaSource:     "cardiology.md",
				MetaChunkIndex: "0",
			},
		})
		require.NoError(t, err)

		assert.Equal(t, 1, embedder.callCount)
		assert.Equal(t, "Myocardial infarction results from coronary occlusion.", embedder.lastInputText)
		assert.Equal(t, 1, querier.execCalls)
		assert.Contains(t, querier.lastExecSQL, "ON CONFLICT (id) DO UPDATE")
	})

	t.Run("embedder failure", func(t *testing.T) {
		querier := &mockQuerier{}
		embedder := &mockEmbedder{embedErr: errors.New("quota exceeded")}
		store := newTestStore(querier, embedder)

		err := store.Add(context.Background(), Passage{ID: "chunk_a", Content: "text"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
		assert.Zero(t, querier.execCalls, "should not write without an embedding")
	})

	t.Run("empty embedding rejected", func(t *testing.T) {
		store := newTestStore(&mockQuerier{}, &mockEmbedder{returnEmpty: true})

		err := store.Add(context.Background(), Passage{ID: "chunk_a", Content: "text"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty embedding")
	})

	t.Run("upsert failure", func(t *testing.T) {
		querier := &mockQuerier{execErr: errors.New("connection refused")}
		store := newTestStore(querier, &mockEmbedder{})

		err := store.Add(context.Background(), Passage{ID: "chunk_a", Content: "text"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chunk_a")
	})
}

func TestStore_Search(t *testing.T) {
	now := time.Now()

	t.Run("returns results in rank order", func(t *testing.T) {
		querier := &mockQuerier{rows: []rowData{
			{id: "p1", content: "first", metadata: map[string]string{MetaSource: "a.md"}, createdAt: now, similarity: 0.92},
			{id: "p2", content: "second", metadata: map[string]string{MetaSource: "b.md"}, createdAt: now, similarity: 0.81},
		}}
		store := newTestStore(querier, &mockEmbedder{})

		results, err := store.Search(context.Background(), "coronary anatomy", WithTopK(2))
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "p1", results[0].Passage.ID)
		assert.Equal(t, "first", results[0].Passage.Content)
		assert.InDelta(t, 0.92, results[0].Similarity, 0.001)
		assert.Equal(t, "p2", results[1].Passage.ID)
	})

	t.Run("no matches returns empty slice", func(t *testing.T) {
		store := newTestStore(&mockQuerier{}, &mockEmbedder{})

		results, err := store.Search(context.Background(), "anything")
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("embedding timeout", func(t *testing.T) {
		store := newTestStore(&mockQuerier{}, &mockEmbedder{delay: time.Second})

		_, err := store.Search(context.Background(), "slow",
			WithTimeout(20*time.Millisecond))
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("query failure", func(t *testing.T) {
		querier := &mockQuerier{queryErr: errors.New("relation does not exist")}
		store := newTestStore(querier, &mockEmbedder{})

		_, err := store.Search(context.Background(), "anything")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "vector search failed")
	})

	t.Run("malformed metadata degrades to empty map", func(t *testing.T) {
		// Scan delivers invalid JSON for metadata via a custom rows impl.
		querier := &mockQuerier{rows: []rowData{
			{id: "p1", content: "text", metadata: nil, createdAt: now, similarity: 0.5},
		}}
		store := newTestStore(querier, &mockEmbedder{})

		results, err := store.Search(context.Background(), "anything")
		require.NoError(t, err)
		require.Len(t, results, 1)
	})
}

func TestStore_Count(t *testing.T) {
	querier := &mockQuerier{count: 42}
	store := newTestStore(querier, &mockEmbedder{})

	n, err := store.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = store.Count(context.Background(), "cardiology.md")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestStore_Delete(t *testing.T) {
	querier := &mockQuerier{}
	store := newTestStore(querier, &mockEmbedder{})

	require.NoError(t, store.Delete(context.Background(), "p1"))
	assert.Equal(t, 1, querier.execCalls)
	assert.Equal(t, []any{"p1"}, querier.lastExecArgs)
}

func TestStore_DeleteBySource(t *testing.T) {
	querier := &mockQuerier{rowsAffected: 3}
	store := newTestStore(querier, &mockEmbedder{})

	n, err := store.DeleteBySource(context.Background(), "cardiology.md")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, querier.lastExecSQL, "metadata @>")
}
