// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to verify the scripts the narration layer builds
// and to feed controlled audio without a live speech backend. All fields are
// safe to set before calling any method; mutating them during a concurrent
// call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Audio: &tts.Audio{Data: []byte("fake-mp3"), Format: tts.FormatMP3},
//	}
//	audio, _ := p.Synthesize(ctx, script)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingocast/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Script is the Script passed to Synthesize.
	Script tts.Script
}

// VoicesCall records a single invocation of Voices.
type VoicesCall struct {
	// Ctx is the context passed to Voices.
	Ctx context.Context
}

// Provider is a mock implementation of tts.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err to inject an error, or SynthesizeFunc for per-script replies.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Audio is returned by Synthesize. May be nil (returns nil, nil).
	Audio *tts.Audio

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// SynthesizeFunc, if non-nil, takes precedence over Audio and Err. Use it
	// when the reply must depend on the script, e.g. to fail only a specific
	// narration or to inspect the segment layout in place.
	SynthesizeFunc func(ctx context.Context, script tts.Script) (*tts.Audio, error)

	// VoicesResult is returned by Voices.
	VoicesResult []tts.Voice

	// VoicesErr, if non-nil, is returned as the error from Voices.
	VoicesErr error

	// ProviderName is returned by Name. Defaults to "mock" when empty.
	ProviderName string

	// --- Call records (read after test) ---

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	// VoicesCalls records every invocation of Voices in order.
	VoicesCalls []VoicesCall
}

// Synthesize records the call and returns the configured reply.
func (p *Provider) Synthesize(ctx context.Context, script tts.Script) (*tts.Audio, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Script: script})
	fn := p.SynthesizeFunc
	audio, err := p.Audio, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, script)
	}
	return audio, err
}

// Voices records the call and returns VoicesResult, VoicesErr.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VoicesCalls = append(p.VoicesCalls, VoicesCall{Ctx: ctx})
	return p.VoicesResult, p.VoicesErr
}

// Name returns ProviderName, or "mock" when unset.
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// Calls returns a snapshot of the recorded Synthesize invocations. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	calls := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(calls, p.SynthesizeCalls)
	return calls
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.VoicesCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
