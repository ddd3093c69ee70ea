// Package app wires all Lingocast subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithDurableStore) and the Providers struct. When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/lingocast/internal/align"
	"github.com/MrWong99/lingocast/internal/audiostore"
	"github.com/MrWong99/lingocast/internal/cache"
	cachepg "github.com/MrWong99/lingocast/internal/cache/postgres"
	"github.com/MrWong99/lingocast/internal/config"
	"github.com/MrWong99/lingocast/internal/extract"
	"github.com/MrWong99/lingocast/internal/health"
	"github.com/MrWong99/lingocast/internal/narrate"
	"github.com/MrWong99/lingocast/internal/server"
	"github.com/MrWong99/lingocast/internal/translate"
	"github.com/MrWong99/lingocast/pkg/provider/llm"
	"github.com/MrWong99/lingocast/pkg/provider/tts"
)

// Defaults applied when the matching config field is zero.
const (
	defaultListenAddr    = ":8080"
	defaultCacheCapacity = 1024
	defaultArtifactDir   = "data/audio"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry;
// slots carrying fallback chains arrive already wrapped by
// [internal/resilience].
type Providers struct {
	LLM llm.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes and orchestrates the Lingocast pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New, torn down in Shutdown.
	engine    *align.Engine
	cache     *cache.Cache
	durable   cache.DurableStore
	artifacts *audiostore.Store
	narrator  *narrate.Narrator
	service   *translate.Service
	handler   http.Handler
	httpSrv   *http.Server

	// checkers back the /readyz probe.
	checkers []health.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDurableStore injects a durable cache tier instead of connecting to
// PostgreSQL from config.
func WithDurableStore(s cache.DurableStore) Option {
	return func(a *App) { a.durable = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: lexicon loading, cache and
// durable-store connection, artifact store setup, narrator and pipeline
// construction, and route assembly. The HTTP listener is not bound until Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: a generative language provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Alignment engine ──────────────────────────────────────────────
	if err := a.initEngine(); err != nil {
		return nil, fmt.Errorf("app: init alignment engine: %w", err)
	}

	// ── 2. Cache ─────────────────────────────────────────────────────────
	if err := a.initCache(ctx); err != nil {
		return nil, fmt.Errorf("app: init cache: %w", err)
	}

	// ── 3. Artifact store ────────────────────────────────────────────────
	if err := a.initArtifacts(); err != nil {
		return nil, fmt.Errorf("app: init artifact store: %w", err)
	}

	// ── 4. Narrator ──────────────────────────────────────────────────────
	a.initNarrator()

	// ── 5. Translation service ───────────────────────────────────────────
	a.initService()

	// ── 6. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initEngine builds the word-alignment engine over the built-in lexicon plus
// the optional YAML overlay from config.
func (a *App) initEngine() error {
	lex := align.NewLexicon()
	if path := a.cfg.Lexicon.Path; path != "" {
		if err := lex.LoadFile(path); err != nil {
			return fmt.Errorf("load lexicon overlay %q: %w", path, err)
		}
		slog.Info("loaded lexicon overlay", "path", path)
	}
	a.engine = align.NewEngine(lex)
	return nil
}

// initCache sets up the memory tier and, when a DSN is configured, the
// PostgreSQL durable tier. An injected durable store takes precedence.
func (a *App) initCache(ctx context.Context) error {
	capacity := a.cfg.Cache.Capacity
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}

	if a.durable == nil && a.cfg.Cache.PostgresDSN != "" {
		store, err := cachepg.NewStore(ctx, a.cfg.Cache.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect durable store: %w", err)
		}
		a.durable = store
		a.checkers = append(a.checkers, health.Checker{Name: "durable-store", Check: store.Ping})
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		slog.Info("durable cache tier connected")
	}

	var opts []cache.Option
	if a.durable != nil {
		opts = append(opts, cache.WithDurable(a.durable))
	}
	if a.cfg.Cache.MinConfidence > 0 {
		opts = append(opts, cache.WithPersistThreshold(a.cfg.Cache.MinConfidence))
	}
	if a.cfg.Cache.WriteTimeout > 0 {
		opts = append(opts, cache.WithWriteTimeout(a.cfg.Cache.WriteTimeout))
	}

	c, err := cache.New(capacity, opts...)
	if err != nil {
		return err
	}
	a.cache = c
	return nil
}

// initArtifacts opens the narration artifact store. The store is created even
// without a TTS provider so previously stored artifacts remain servable.
func (a *App) initArtifacts() error {
	dir := a.cfg.Narration.ArtifactDir
	if dir == "" {
		dir = defaultArtifactDir
	}
	store, err := audiostore.New(dir)
	if err != nil {
		return fmt.Errorf("open artifact store %q: %w", dir, err)
	}
	a.artifacts = store
	return nil
}

// initNarrator builds the narrator when a TTS provider is configured.
// Without one, translations are served text-only.
func (a *App) initNarrator() {
	if a.providers.TTS == nil {
		slog.Info("no TTS provider configured; narration disabled")
		return
	}

	var opts []narrate.Option
	if a.cfg.Narration.Voice != "" {
		opts = append(opts, narrate.WithVoice(a.cfg.Narration.Voice))
	}
	if a.cfg.Narration.Speed != 0 {
		opts = append(opts, narrate.WithSpeed(a.cfg.Narration.Speed))
	}
	if a.cfg.Narration.Timeout > 0 {
		opts = append(opts, narrate.WithTimeout(a.cfg.Narration.Timeout))
	}
	a.narrator = narrate.New(a.providers.TTS, a.artifacts, opts...)
}

// initService assembles the translation pipeline. Zero-valued pipeline
// settings keep the service defaults.
func (a *App) initService() {
	opts := []translate.Option{
		translate.WithCache(a.cache),
		translate.WithCombined(a.cfg.Pipeline.Combined),
	}
	if a.narrator != nil {
		opts = append(opts, translate.WithNarrator(a.narrator))
	}
	if a.cfg.Pipeline.LLMTimeout > 0 {
		opts = append(opts, translate.WithBackendTimeout(a.cfg.Pipeline.LLMTimeout))
	}
	if a.cfg.Pipeline.Temperature > 0 {
		opts = append(opts, translate.WithTemperature(a.cfg.Pipeline.Temperature))
	}
	if a.cfg.Pipeline.MaxTokens > 0 {
		opts = append(opts, translate.WithMaxTokens(a.cfg.Pipeline.MaxTokens))
	}
	a.service = translate.NewService(a.providers.LLM, extract.New(), a.engine, opts...)
}

// availabilityReporter is implemented by [resilience.LLMFallback] and
// [resilience.TTSFallback]. Plain providers without breakers always count as
// available.
type availabilityReporter interface {
	Available() bool
}

// initServer assembles the route table. The listener itself is bound in Run.
func (a *App) initServer() {
	llmProvider := a.providers.LLM
	a.checkers = append(a.checkers, health.Checker{
		Name: "llm-provider",
		Check: func(context.Context) error {
			if r, ok := llmProvider.(availabilityReporter); ok && !r.Available() {
				return errors.New("all backends have open circuit breakers")
			}
			return nil
		},
	})

	srv := server.New(a.service, a.artifacts,
		server.WithHealth(health.New(a.checkers...)),
	)
	a.handler = srv.Handler()

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the fully assembled HTTP handler. Mainly for tests that
// drive the stack through httptest without binding a port.
func (a *App) Handler() http.Handler {
	return a.handler
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run binds the HTTP listener and blocks until ctx is cancelled or the server
// fails. When ctx is done, Run returns context.Canceled; call Shutdown for the
// graceful teardown.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if t := a.cfg.Server.TLS; t != nil {
			err = a.httpSrv.ListenAndServeTLS(t.CertFile, t.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("app running",
		"addr", a.httpSrv.Addr,
		"tls", a.cfg.Server.TLS != nil,
		"narration", a.narrator != nil,
		"durable_cache", a.durable != nil,
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server gracefully and tears down all subsystems in
// order. It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
