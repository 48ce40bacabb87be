package prompt

import "errors"

// Sentinel errors for the retrieval path. The pipeline classifies failures
// with these before falling back to direct synthesis; callers can inspect
// them with errors.Is when a Result reports a fallback.
var (
	// ErrRefinement indicates the query refinement call failed.
	ErrRefinement = errors.New("query refinement failed")

	// ErrRetrievalTimeout indicates retrieval exceeded the bounded wait.
	ErrRetrievalTimeout = errors.New("retrieval timed out")

	// ErrNoPassages indicates the search completed but matched nothing.
	ErrNoPassages = errors.New("no passages retrieved")

	// ErrRetrieval indicates the search backend failed.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrSynthesis indicates a synthesis call failed.
	ErrSynthesis = errors.New("prompt synthesis failed")
)
