// Package passage stores and retrieves chunks of reference material for
// retrieval-augmented prompt construction.
//
// Embeddings are generated through a Genkit embedder and stored in
// PostgreSQL with pgvector; search orders by cosine distance.
package passage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/medsketch/medsketch/internal/log"
)

// Querier is the subset of pgx pool operations the store needs.
// Satisfied by *pgxpool.Pool; defined here so tests can substitute a mock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages the passage index. Safe for concurrent use.
type Store struct {
	db       Querier
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a Store backed by the given querier and embedder.
func New(db Querier, embedder ai.Embedder, logger log.Logger) *Store {
	return &Store{
		db:       db,
		embedder: embedder,
		logger:   logger,
	}
}

// embed generates one embedding vector for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("generating embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("embedder returned empty embedding")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Add embeds and upserts a passage. Re-indexing a source reuses chunk IDs,
// so ON CONFLICT updates in place.
func (s *Store) Add(ctx context.Context, p Passage) error {
	embedding, err := s.embed(ctx, p.Content)
	if err != nil {
		return fmt.Errorf("passage %q: %w", p.ID, err)
	}

	metadataJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", p.ID, err)
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO passages (id, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    embedding = EXCLUDED.embedding,
		    metadata = EXCLUDED.metadata,
		    created_at = EXCLUDED.created_at`,
		p.ID, p.Content, embedding, metadataJSON, createdAt)
	if err != nil {
		return fmt.Errorf("upserting passage %q: %w", p.ID, err)
	}

	s.logger.Debug("passage indexed", "id", p.ID, "content_length", len(p.Content))
	return nil
}

// Search returns the passages most similar to query, ordered by descending
// cosine similarity. A per-query timeout bounds both the embedding call and
// the vector query.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	queryEmbedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timed out: %w", err)
		}
		return nil, err
	}

	// Parameterized throughout: cfg.source comes from callers but is never
	// interpolated into SQL text.
	var rows pgx.Rows
	if cfg.source != "" {
		filterJSON, marshalErr := json.Marshal(map[string]string{MetaSource: cfg.source})
		if marshalErr != nil {
			return nil, fmt.Errorf("marshaling source filter: %w", marshalErr)
		}
		rows, err = s.db.Query(queryCtx, `
			SELECT id, content, metadata, created_at,
			       1 - (embedding <=> $1) AS similarity
			FROM passages
			WHERE metadata @> $2
			ORDER BY embedding <=> $1
			LIMIT $3`,
			queryEmbedding, filterJSON, cfg.topK)
	} else {
		rows, err = s.db.Query(queryCtx, `
			SELECT id, content, metadata, created_at,
			       1 - (embedding <=> $1) AS similarity
			FROM passages
			ORDER BY embedding <=> $1
			LIMIT $2`,
			queryEmbedding, cfg.topK)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timed out: %w", err)
		}
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0, cfg.topK)
	for rows.Next() {
		var (
			p            Passage
			metadataJSON []byte
			similarity   float32
		)
		if err := rows.Scan(&p.ID, &p.Content, &metadataJSON, &p.CreatedAt, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &p.Metadata); err != nil {
			s.logger.Warn("failed to parse passage metadata", "passage_id", p.ID, "error", err)
			p.Metadata = make(map[string]string)
		}
		results = append(results, Result{Passage: p, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	return results, nil
}

// Count returns the number of indexed passages, optionally restricted to
// one source document.
func (s *Store) Count(ctx context.Context, source string) (int, error) {
	var (
		count int64
		err   error
	)
	if source != "" {
		filterJSON, marshalErr := json.Marshal(map[string]string{MetaSource: source})
		if marshalErr != nil {
			return 0, fmt.Errorf("marshaling source filter: %w", marshalErr)
		}
		err = s.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM passages WHERE metadata @> $1`, filterJSON).Scan(&count)
	} else {
		err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting passages: %w", err)
	}

	// Overflow guard for 32-bit platforms.
	if count > math.MaxInt {
		return 0, fmt.Errorf("passage count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// Delete removes one passage by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM passages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting passage %q: %w", id, err)
	}
	s.logger.Debug("passage deleted", "id", id)
	return nil
}

// DeleteBySource removes all passages indexed from one source document.
// The indexer calls this before re-indexing a file whose chunk count shrank.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int, error) {
	filterJSON, err := json.Marshal(map[string]string{MetaSource: source})
	if err != nil {
		return 0, fmt.Errorf("marshaling source filter: %w", err)
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM passages WHERE metadata @> $1`, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("deleting passages for source %q: %w", source, err)
	}
	return int(tag.RowsAffected()), nil
}
