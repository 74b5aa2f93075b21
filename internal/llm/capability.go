// Package llm defines the capability interfaces the extraction and
// retrieval services call into, and wraps them with a circuit breaker so a
// failing provider degrades to the documented fallback instead of cascading.
package llm

import "context"

// Embedder turns text into a dense vector. A nil result with no error is
// never valid; callers treat any error as "no embedding" and proceed with
// the embedding-free code path.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// JSONCaller issues a single structured-JSON completion request.
// systemPrompt carries the full instruction including schema; implementations are
// expected to request JSON-mode from the underlying provider when it
// supports one.
type JSONCaller interface {
	CallJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
