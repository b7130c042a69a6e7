package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrCatalogUnavailable signals that the catalog handle could not be
	// re-acquired and the store is unusable for the current call.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationFailed signals a generation service failure or timeout.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrSessionNotFound signals a missing conversation session.
	ErrSessionNotFound = errors.New("session not found")
)
