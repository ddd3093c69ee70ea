package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/lingocast/pkg/provider/llm"
	"github.com/MrWong99/lingocast/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested provider name. Callers use it to tell a
// misspelled name apart from a factory that failed.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factorySet holds the registered factories for one provider kind. The kind
// label only shows up in error messages ("llm/...", "tts/...").
type factorySet[P any] struct {
	kind      string
	factories map[string]func(ProviderEntry) (P, error)
}

func newFactorySet[P any](kind string) factorySet[P] {
	return factorySet[P]{
		kind:      kind,
		factories: make(map[string]func(ProviderEntry) (P, error)),
	}
}

// resolve looks up the factory for entry.Name.
func (s factorySet[P]) resolve(entry ProviderEntry) (func(ProviderEntry) (P, error), error) {
	factory, ok := s.factories[entry.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, s.kind, entry.Name)
	}
	return factory, nil
}

// Registry resolves provider names from the config file to constructed
// providers. main registers the built-in factories at startup; tests register
// whatever stand-ins they need. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm factorySet[llm.Provider]
	tts factorySet[tts.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: newFactorySet[llm.Provider]("llm"),
		tts: newFactorySet[tts.Provider]("tts"),
	}
}

// RegisterLLM makes a language-model factory available under name,
// replacing any factory already registered there.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.factories[name] = factory
}

// RegisterTTS makes a speech-synthesis factory available under name,
// replacing any factory already registered there.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.factories[name] = factory
}

// CreateLLM builds the language-model provider named by entry. The factory
// itself runs outside the registry lock.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, err := r.llm.resolve(entry)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateTTS builds the speech-synthesis provider named by entry. The factory
// itself runs outside the registry lock.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, err := r.tts.resolve(entry)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry)
}
