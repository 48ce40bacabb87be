package prompt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medsketch/medsketch/internal/log"
)

// Path markers recorded on every Result.
const (
	// PathRAG marks a prompt grounded in retrieved passages.
	PathRAG = "rag"

	// PathDirect marks a prompt synthesized without retrieval context.
	PathDirect = "direct"
)

// Fallback reasons recorded when a request degrades to the direct path.
const (
	ReasonRetrievalDisabled = "retrieval_disabled"
	ReasonRefinementFailed  = "refinement_failed"
	ReasonRetrievalTimeout  = "retrieval_timeout"
	ReasonNoPassages        = "no_passages"
	ReasonRetrievalFailed   = "retrieval_failed"
	ReasonSynthesisFailed   = "synthesis_failed"
)

// Result is the outcome of one pipeline run.
type Result struct {
	// Prompt is the generated image prompt, whitespace-trimmed.
	Prompt string

	// Path is PathRAG or PathDirect.
	Path string

	// FallbackReason explains why a direct-path result was not grounded.
	// Empty on the RAG path.
	FallbackReason string
}

// Pipeline orchestrates refine, retrieve and synthesize with fail-open
// degradation. A nil assembler or refiner runs the pipeline in permanent
// direct mode; that is the startup degradation path when the passage index
// is unreachable.
type Pipeline struct {
	refiner       *Refiner
	assembler     *Assembler
	synthesizer   *Synthesizer
	topK          int
	retrievalWait time.Duration
	logger        log.Logger
}

// NewPipeline creates the controller. synthesizer and logger are required;
// refiner and assembler may be nil to disable the retrieval path.
func NewPipeline(refiner *Refiner, assembler *Assembler, synthesizer *Synthesizer, topK int, retrievalWait time.Duration, logger log.Logger) *Pipeline {
	return &Pipeline{
		refiner:       refiner,
		assembler:     assembler,
		synthesizer:   synthesizer,
		topK:          topK,
		retrievalWait: retrievalWait,
		logger:        logger,
	}
}

// RetrievalEnabled reports whether the retrieval path is wired.
func (p *Pipeline) RetrievalEnabled() bool {
	return p.refiner != nil && p.assembler != nil
}

// Generate produces an image prompt for question under the caller-supplied
// system instruction.
//
// Control flow is deterministic: the grounded path runs when retrieval is
// wired and every stage succeeds; any retrieval-path failure degrades to
// direct synthesis. An error returns to the caller only when the final
// synthesis attempt itself fails.
func (p *Pipeline) Generate(ctx context.Context, instruction, question string) (*Result, error) {
	if !p.RetrievalEnabled() {
		return p.direct(ctx, instruction, question, ReasonRetrievalDisabled)
	}

	retrievalContext, err := p.retrieve(ctx, question)
	if err != nil {
		// Caller cancellation is not recoverable by falling back; the
		// direct call would fail on the same dead context.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request canceled during retrieval: %w", ctx.Err())
		}
		reason := classifyFallback(err)
		p.logger.Warn("retrieval failed, falling back to direct synthesis",
			"reason", reason, "error", err)
		return p.direct(ctx, instruction, question, reason)
	}

	out, err := p.synthesizer.Synthesize(ctx, instruction, question, retrievalContext)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request canceled during synthesis: %w", ctx.Err())
		}
		p.logger.Warn("grounded synthesis failed, falling back to direct synthesis",
			"error", err)
		return p.direct(ctx, instruction, question, ReasonSynthesisFailed)
	}

	return &Result{Prompt: out, Path: PathRAG}, nil
}

// retrieve runs refinement and assembly in a worker goroutine under a
// bounded wait. The buffered channel lets an abandoned worker deliver its
// late result and exit; the deferred cancel unblocks cooperative stages.
func (p *Pipeline) retrieve(ctx context.Context, question string) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.retrievalWait)
	defer cancel()

	type outcome struct {
		retrievalContext string
		err              error
	}
	ch := make(chan outcome, 1)

	go func() {
		query, err := p.refiner.Refine(waitCtx, question)
		if err != nil {
			ch <- outcome{err: err}
			return
		}
		p.logger.Debug("refined retrieval query", "query_length", len(query))

		retrievalContext, err := p.assembler.Assemble(waitCtx, query, p.topK)
		ch <- outcome{retrievalContext: retrievalContext, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return "", res.err
		}
		return res.retrievalContext, nil
	case <-waitCtx.Done():
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w after %s", ErrRetrievalTimeout, p.retrievalWait)
		}
		return "", fmt.Errorf("%w: %w", ErrRetrieval, waitCtx.Err())
	}
}

func (p *Pipeline) direct(ctx context.Context, instruction, question, reason string) (*Result, error) {
	out, err := p.synthesizer.Synthesize(ctx, instruction, question, "")
	if err != nil {
		return nil, err
	}
	return &Result{Prompt: out, Path: PathDirect, FallbackReason: reason}, nil
}

func classifyFallback(err error) string {
	// Deadline errors are classified as timeouts regardless of whether the
	// bounded-wait select or a cooperative stage noticed the expiry first.
	switch {
	case errors.Is(err, ErrRetrievalTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonRetrievalTimeout
	case errors.Is(err, ErrRefinement):
		return ReasonRefinementFailed
	case errors.Is(err, ErrNoPassages):
		return ReasonNoPassages
	default:
		return ReasonRetrievalFailed
	}
}
