// Package indexer builds the passage index from local reference material.
//
// Input is a .txt or .md file, or a directory tree of them. Each file is
// chunked, annotated with keyword metadata and upserted into the passage
// store with a deterministic chunk ID, so re-indexing the same corpus
// updates in place. A file lock keeps concurrent index runs from
// interleaving writes.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/medsketch/medsketch/internal/log"
	"github.com/medsketch/medsketch/internal/passage"
)

// Store is the storage contract the indexer consumes. Satisfied by
// *passage.Store.
type Store interface {
	Add(ctx context.Context, p passage.Passage) error
	DeleteBySource(ctx context.Context, source string) (int, error)
}

// supportedExtensions are the corpus file types the indexer reads.
var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// maxKeywords bounds the keyword metadata per chunk.
const maxKeywords = 5

// defaultConcurrency bounds in-flight embedding calls per index run.
const defaultConcurrency = 4

// Result summarizes one index run.
type Result struct {
	FilesIndexed int
	FilesSkipped int
	FilesFailed  int
	ChunksAdded  int
	Duration     time.Duration
}

// Indexer chunks corpus files and writes them to the passage store.
type Indexer struct {
	store       Store
	chunker     *Chunker
	logger      log.Logger
	concurrency int
	lockPath    string
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithConcurrency bounds concurrent embedding calls.
func WithConcurrency(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.concurrency = n
		}
	}
}

// WithLockPath overrides the index lock file location.
func WithLockPath(path string) Option {
	return func(idx *Indexer) {
		idx.lockPath = path
	}
}

// New creates an Indexer over the given store and chunker.
func New(store Store, chunker *Chunker, logger log.Logger, opts ...Option) *Indexer {
	idx := &Indexer{
		store:       store,
		chunker:     chunker,
		logger:      logger,
		concurrency: defaultConcurrency,
		lockPath:    filepath.Join(os.TempDir(), "medsketch-index.lock"),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Run indexes the file or directory at path. Only one run may mutate the
// index at a time; a second concurrent run fails fast instead of queueing.
func (idx *Indexer) Run(ctx context.Context, path string) (*Result, error) {
	fileLock := flock.New(idx.lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another index run holds the lock at %s", idx.lockPath)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			idx.logger.Warn("failed to release index lock", "error", err)
		}
	}()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", absPath, err)
	}

	start := time.Now()
	result := &Result{}
	if info.IsDir() {
		err = idx.indexDirectory(ctx, absPath, result)
	} else {
		err = idx.indexSingleFile(ctx, absPath, result)
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	idx.logger.Info("index run complete",
		"files_indexed", result.FilesIndexed,
		"files_skipped", result.FilesSkipped,
		"files_failed", result.FilesFailed,
		"chunks_added", result.ChunksAdded,
		"duration", result.Duration)
	return result, nil
}

func (idx *Indexer) indexSingleFile(ctx context.Context, absPath string, result *Result) error {
	ext := strings.ToLower(filepath.Ext(absPath))
	if !supportedExtensions[ext] {
		return fmt.Errorf("unsupported file type %q (want .txt or .md)", ext)
	}

	// os.Root confines reads to the parent directory, so a symlinked
	// corpus file cannot pull in content from elsewhere.
	root, err := os.OpenRoot(filepath.Dir(absPath))
	if err != nil {
		return fmt.Errorf("opening root directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	added, err := idx.indexFile(ctx, root, filepath.Base(absPath), absPath)
	if err != nil {
		return err
	}
	result.FilesIndexed++
	result.ChunksAdded += added
	return nil
}

func (idx *Indexer) indexDirectory(ctx context.Context, absDir string, result *Result) error {
	root, err := os.OpenRoot(absDir)
	if err != nil {
		return fmt.Errorf("opening root directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	return filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.FilesFailed++
			return nil // Keep walking past unreadable entries.
		}
		if d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			result.FilesSkipped++
			return nil
		}

		relPath, err := filepath.Rel(absDir, path)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		added, err := idx.indexFile(ctx, root, relPath, path)
		if err != nil {
			idx.logger.Warn("failed to index file", "path", path, "error", err)
			result.FilesFailed++
			return nil
		}
		result.FilesIndexed++
		result.ChunksAdded += added
		return nil
	})
}

// indexFile chunks one file and upserts its passages concurrently. Stale
// passages from a previous, longer version of the file are removed first.
func (idx *Indexer) indexFile(ctx context.Context, root *os.Root, relPath, sourcePath string) (int, error) {
	content, err := root.ReadFile(relPath)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", sourcePath, err)
	}

	chunks := idx.chunker.Split(string(content))
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no content after chunking %s", sourcePath)
	}

	if _, err := idx.store.DeleteBySource(ctx, sourcePath); err != nil {
		return 0, fmt.Errorf("clearing previous passages for %s: %w", sourcePath, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	now := time.Now()
	for i, chunk := range chunks {
		g.Go(func() error {
			keywords := ExtractKeywords(chunk, maxKeywords)
			p := passage.Passage{
				ID:      chunkID(sourcePath, i),
				Content: chunk,
				Metadata: map[string]string{
					passage.MetaSource:     sourcePath,
					passage.MetaChunkIndex: strconv.Itoa(i),
				},
				CreatedAt: now,
			}
			if len(keywords) > 0 {
				p.Metadata[passage.MetaKeywords] = strings.Join(keywords, ", ")
			}
			return idx.store.Add(gctx, p)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("indexing %s: %w", sourcePath, err)
	}

	idx.logger.Debug("file indexed", "source", sourcePath, "chunks", len(chunks))
	return len(chunks), nil
}

// chunkID derives a stable passage ID from the source path and chunk
// position, so re-indexing updates rather than duplicates.
func chunkID(sourcePath string, index int) string {
	hash := sha256.Sum256([]byte(sourcePath + "#" + strconv.Itoa(index)))
	return "chunk_" + hex.EncodeToString(hash[:16])
}
