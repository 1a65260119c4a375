package models

import "errors"

// Error classes surfaced by the pipeline. Operations wrap one of these so
// callers can classify a failure with errors.Is.
var (
	// ErrConfig indicates invalid configuration, e.g. overlap >= chunk size.
	ErrConfig = errors.New("config error")

	// ErrLoad indicates a source document could not be read or parsed.
	ErrLoad = errors.New("load error")

	// ErrRetrieval indicates the vector store is empty or unreachable,
	// or the question could not be embedded.
	ErrRetrieval = errors.New("retrieval error")

	// ErrGeneration indicates the LLM call failed, timed out or was rate limited.
	ErrGeneration = errors.New("generation error")
)
