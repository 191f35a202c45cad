package types

import "errors"

var (
	// ErrChunking is returned for malformed chunking parameters.
	ErrChunking = errors.New("invalid chunking parameters")

	// ErrEmbedding wraps failures of the embedding model.
	ErrEmbedding = errors.New("embedding failed")

	// ErrGeneration wraps failures of the generation model.
	ErrGeneration = errors.New("generation failed")

	// ErrStorage wraps failures of the chunk store medium.
	ErrStorage = errors.New("storage failed")

	// ErrSearch wraps web search transport failures. An empty search result
	// is not an error.
	ErrSearch = errors.New("web search failed")

	// ErrLoad wraps document acquisition failures.
	ErrLoad = errors.New("document load failed")

	// ErrUnsupportedKind is returned for an unknown document kind.
	ErrUnsupportedKind = errors.New("unsupported document kind")
)
