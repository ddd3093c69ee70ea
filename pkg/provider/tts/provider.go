// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, OpenAI
// audio, or a local Coqui instance) and renders a complete [Script] into one
// audio artifact. A script is an ordered list of [Segment] values with pause
// hints; how the pauses are realised is provider-specific (SSML-like break
// tags, punctuation shaping, or spliced silence), but providers must preserve
// the segment order exactly — the script order is the word-by-word order the
// listener follows along on screen.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple narrations may be
// synthesised in parallel.
type Provider interface {
	// Synthesize renders the script into a single audio artifact, preserving
	// segment order and honouring pause hints as closely as the backend
	// allows.
	//
	// Returns an error if the backend cannot be reached, rejects the request,
	// or ctx is cancelled. A nil error implies a non-nil Audio with non-empty
	// Data.
	Synthesize(ctx context.Context, script Script) (*Audio, error)

	// Voices returns the voice catalogue currently available from this
	// provider. The list may change between calls if the underlying service
	// adds or removes voices.
	Voices(ctx context.Context) ([]Voice, error)

	// Name identifies the backend for logs and metrics (e.g., "elevenlabs",
	// "openai", "coqui"). The result is constant for the lifetime of the
	// Provider instance.
	Name() string
}
