// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4o, an
// Anthropic model, or a local Ollama instance) and exposes a uniform interface
// for the Lingocast translation pipeline to request completions without
// coupling to any specific SDK. The pipeline sends one [Request] per
// translation call: the System field carries the sectioned-output directive and
// the Prompt field carries the sentence to translate.
//
// Implementations must be safe for concurrent use; the pipeline issues one
// completion per requested style in parallel.
package llm

import "context"

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines and
// must propagate context cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before the
	// completion arrives. A nil error implies a non-nil Response, though the
	// response text may still be empty or malformed; the caller's parser is
	// responsible for salvaging whatever sections it can.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name identifies the backend for logs and metrics (e.g., "openai",
	// "anyllm:anthropic"). The result is constant for the lifetime of the
	// Provider instance.
	Name() string
}
