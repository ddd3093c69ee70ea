package resilience

import (
	"context"
	"strings"

	"github.com/MrWong99/lingocast/pkg/provider/tts"
)

// TTSFallback chains several speech backends behind the tts.Provider
// interface. Narration keeps working as long as one backend in the chain
// still answers; each backend sits behind its own breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback starts a chain with primary as the preferred backend.
// primaryName labels the backend in logs and breaker state.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends provider to the end of the failover order.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize implements tts.Provider across the chain: the script is retried
// on the next backend whenever the current one fails.
func (f *TTSFallback) Synthesize(ctx context.Context, script tts.Script) (*tts.Audio, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Audio, error) {
		return p.Synthesize(ctx, script)
	})
}

// Voices returns available voices from the first healthy provider.
func (f *TTSFallback) Voices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.Voice, error) {
		return p.Voices(ctx)
	})
}

// Available reports whether any backend in the chain can currently be called.
func (f *TTSFallback) Available() bool {
	return f.group.Available()
}

// Name lists every backend in the chain, e.g. "openai,coqui".
func (f *TTSFallback) Name() string {
	return strings.Join(f.group.names(), ",")
}
