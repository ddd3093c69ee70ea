package resilience

import (
	"context"
	"strings"

	"github.com/MrWong99/lingocast/pkg/provider/llm"
)

// LLMFallback chains several language-model backends behind the llm.Provider
// interface. Calls go to the first backend whose breaker admits them; a
// failure moves on to the next, so a translation request only errors once
// every backend is down or broken.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback starts a chain with primary as the preferred backend.
// primaryName labels the backend in logs and breaker state.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends provider to the end of the failover order.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete implements llm.Provider across the chain: the request is retried
// on the next backend whenever the current one fails.
func (f *LLMFallback) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.Response, error) {
		return p.Complete(ctx, req)
	})
}

// Available reports whether any backend in the chain can currently be called.
func (f *LLMFallback) Available() bool {
	return f.group.Available()
}

// Name lists every backend in the chain, e.g. "openai,anthropic,ollama", so
// log lines show the whole failover order rather than just the primary.
func (f *LLMFallback) Name() string {
	return strings.Join(f.group.names(), ",")
}
