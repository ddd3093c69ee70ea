package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingocast/internal/align"
	"github.com/MrWong99/lingocast/internal/extract"
	"github.com/MrWong99/lingocast/internal/observe"
	"github.com/MrWong99/lingocast/internal/styles"
	"github.com/MrWong99/lingocast/pkg/provider/llm"
)

// ErrInvalidRequest is returned for input that fails basic validation: empty
// text, an unknown language, or no enabled style. These are the caller's
// errors and the only ones worth a 4xx at the HTTP boundary.
var ErrInvalidRequest = errors.New("translate: invalid request")

// errSectionMissing marks a style whose reply section could not be parsed.
// Styles failing this way are omitted from the aggregate, never fatal.
var errSectionMissing = errors.New("section missing from reply")

// Request is one translation request. It doubles as the cache key source:
// every field participates in [internal/cache.Key].
type Request struct {
	// Text is the learner's sentence.
	Text string

	// SourceLang is the language Text is written in.
	SourceLang styles.Language

	// TargetLang is the requested target language. Informational for keying;
	// the enabled styles decide what is actually rendered.
	TargetLang styles.Language

	// Prefs selects the styles, word-by-word toggles and mother tongue.
	Prefs styles.Preferences
}

// Validate checks the fatal input invariants. All violations are collected
// and wrapped in [ErrInvalidRequest].
func (r Request) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Text) == "" {
		errs = append(errs, errors.New("empty text"))
	}
	if !r.SourceLang.Known() {
		errs = append(errs, fmt.Errorf("unknown source language %q", r.SourceLang))
	}
	if r.TargetLang != "" && !r.TargetLang.Known() {
		errs = append(errs, fmt.Errorf("unknown target language %q", r.TargetLang))
	}
	if err := r.Prefs.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
}

// ComputeFunc produces a fresh aggregate for a cache miss.
type ComputeFunc func(ctx context.Context) (*Translation, error)

// Cache memoizes completed aggregates. A hit returns the stored aggregate
// unchanged; a miss runs compute and reports cached=false. Implemented by
// [internal/cache.Cache].
type Cache interface {
	GetOrCompute(ctx context.Context, req Request, compute ComputeFunc) (t *Translation, cached bool, err error)
}

// Narrator renders an aggregate into a stored audio artifact and returns its
// reference. Implementations return ("", nil) when synthesis fails; narration
// is best-effort and text results always survive. Implemented by
// [internal/narrate.Narrator].
type Narrator interface {
	Narrate(ctx context.Context, t *Translation, prefs styles.Preferences) (string, error)
}

// Option is a functional option for [NewService].
type Option func(*Service)

// WithCache memoizes completed aggregates through c. Without a cache every
// request runs the full pipeline.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithNarrator enables audio narration of assembled aggregates.
func WithNarrator(n Narrator) Option {
	return func(s *Service) { s.narrator = n }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCombined switches between one backend call per style (false, the
// default) and a single combined call whose reply carries every section.
func WithCombined(combined bool) Option {
	return func(s *Service) { s.combined = combined }
}

// WithBackendTimeout bounds each generative-backend call. Zero disables the
// per-call deadline. Default: 30s.
func WithBackendTimeout(d time.Duration) Option {
	return func(s *Service) { s.llmTimeout = d }
}

// WithTemperature sets the backend sampling temperature. Translation calls
// default to 0.2 so repeated requests keep a stable section layout.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// WithMaxTokens caps the backend completion length. Zero means the provider
// default.
func WithMaxTokens(n int) Option {
	return func(s *Service) { s.maxTokens = n }
}

// Service runs the translation pipeline. It is read-only after construction
// and safe for concurrent use; requests share no state beyond the cache.
type Service struct {
	backend llm.Provider
	parser  *extract.Parser
	engine  *align.Engine

	cache    Cache
	narrator Narrator
	metrics  *observe.Metrics

	combined    bool
	llmTimeout  time.Duration
	temperature float64
	maxTokens   int
}

// NewService wires the pipeline around the given backend, parser and
// alignment engine. Nil parser or engine get package defaults.
func NewService(backend llm.Provider, parser *extract.Parser, engine *align.Engine, opts ...Option) *Service {
	if parser == nil {
		parser = extract.New()
	}
	if engine == nil {
		engine = align.NewEngine(nil)
	}
	s := &Service{
		backend:     backend,
		parser:      parser,
		engine:      engine,
		llmTimeout:  30 * time.Second,
		temperature: 0.2,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Translate runs the full pipeline for req, consulting the cache first when
// one is configured. The returned aggregate is immutable and shared between
// callers on cache hits.
func (s *Service) Translate(ctx context.Context, req Request) (*Translation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.metrics.ActiveRequests.Add(ctx, 1)
	start := time.Now()
	defer func() {
		s.metrics.ActiveRequests.Add(ctx, -1)
		s.metrics.TranslateDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if s.cache == nil {
		return s.compute(ctx, req)
	}

	t, cached, err := s.cache.GetOrCompute(ctx, req, func(cctx context.Context) (*Translation, error) {
		return s.compute(cctx, req)
	})
	if err != nil {
		return nil, err
	}
	if cached {
		observe.Logger(ctx).Debug("translate: served from cache",
			"styles", len(t.Sentences), "audio", t.AudioRef != "")
	}
	return t, nil
}

// compute runs the uncached pipeline: backend call(s), parse, align,
// assemble, narrate.
func (s *Service) compute(ctx context.Context, req Request) (*Translation, error) {
	ctx, span := observe.StartSpan(ctx, "translate.compute")
	defer span.End()

	var (
		sections []extract.Section
		aligned  map[string][]align.Entry
	)
	if s.combined {
		sections, aligned = s.computeCombined(ctx, req)
	} else {
		sections, aligned = s.computePerStyle(ctx, req)
	}

	t, err := Assemble(req.Text, req.SourceLang, req.Prefs, sections, aligned)
	if err != nil {
		return nil, err
	}

	if s.narrator != nil {
		ref, err := s.narrator.Narrate(ctx, t, req.Prefs)
		if err != nil {
			observe.Logger(ctx).Warn("translate: narration failed", "error", err)
		} else if ref != "" {
			t = t.WithAudioRef(ref)
		}
	}
	return t, nil
}

// styleResult is one per-style pipeline outcome, indexed by the style's
// position in the enable order.
type styleResult struct {
	section extract.Section
	entries []align.Entry
	err     error
}

// computePerStyle issues one backend call per enabled style, concurrently.
// The policy is best-effort: errored styles are omitted with a warning and
// never cancel their siblings; Wait synchronises on all of them.
func (s *Service) computePerStyle(ctx context.Context, req Request) ([]extract.Section, map[string][]align.Entry) {
	results := make([]styleResult, len(req.Prefs.Styles))

	var eg errgroup.Group
	for i, st := range req.Prefs.Styles {
		eg.Go(func() error {
			sec, entries, err := s.translateStyle(ctx, req, st)
			results[i] = styleResult{section: sec, entries: entries, err: err}
			return nil
		})
	}
	// Goroutines always return nil; Wait only synchronises.
	_ = eg.Wait()

	sections := make([]extract.Section, 0, len(results))
	aligned := make(map[string][]align.Entry, len(results))
	for i, r := range results {
		if r.err != nil {
			observe.Logger(ctx).Warn("translate: style omitted",
				"style", req.Prefs.Styles[i].ID(), "error", r.err)
			continue
		}
		sections = append(sections, r.section)
		if len(r.entries) > 0 {
			aligned[r.section.Style.ID()] = r.entries
		}
	}
	return sections, aligned
}

// computeCombined issues one backend call whose directive requests every
// enabled style and parses all sections from the single reply.
func (s *Service) computeCombined(ctx context.Context, req Request) ([]extract.Section, map[string][]align.Entry) {
	resp, err := s.complete(ctx, styles.CompileDirective(req.Prefs, req.SourceLang), req.Text)
	if err != nil {
		observe.Logger(ctx).Warn("translate: combined completion failed", "error", err)
		return nil, nil
	}

	sections := s.parser.Parse(resp.Text, req.Prefs)

	present := make(map[string]bool, len(sections))
	for _, sec := range sections {
		present[sec.Style.ID()] = true
	}
	for _, st := range req.Prefs.Styles {
		if !present[st.ID()] {
			s.metrics.RecordParseMiss(ctx, st.ID())
		}
	}

	aligned := make(map[string][]align.Entry, len(sections))
	for _, sec := range sections {
		if entries := s.alignSection(ctx, req, sec); len(entries) > 0 {
			aligned[sec.Style.ID()] = entries
		}
	}
	return sections, aligned
}

// translateStyle runs backend call, parse and alignment for one style.
func (s *Service) translateStyle(ctx context.Context, req Request, st styles.Style) (extract.Section, []align.Entry, error) {
	resp, err := s.complete(ctx, styles.CompileStyleDirective(st, req.Prefs, req.SourceLang), req.Text)
	if err != nil {
		return extract.Section{}, nil, fmt.Errorf("backend completion: %w", err)
	}

	sec, ok := s.parser.ParseStyle(resp.Text, st)
	if !ok {
		s.metrics.RecordParseMiss(ctx, st.ID())
		return extract.Section{}, nil, errSectionMissing
	}
	return sec, s.alignSection(ctx, req, sec), nil
}

// complete sends one completion to the backend under the configured deadline
// and records the provider metrics.
func (s *Service) complete(ctx context.Context, system, prompt string) (*llm.Response, error) {
	cctx := ctx
	if s.llmTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.llmTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.backend.Complete(cctx, llm.Request{
		System:      system,
		Prompt:      prompt,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.backend.Name(), "llm", "error")
		s.metrics.RecordProviderError(ctx, s.backend.Name(), "llm")
		return nil, err
	}
	s.metrics.RecordProviderRequest(ctx, s.backend.Name(), "llm", "ok")
	return resp, nil
}

// alignSection scores one section's raw pairs and records the confidence
// distribution.
func (s *Service) alignSection(ctx context.Context, req Request, sec extract.Section) []align.Entry {
	target := styles.PairTarget(sec.Style, req.Prefs, req.SourceLang)
	entries := s.engine.Align(sec.Style, req.SourceLang, target, sec.Pairs)
	for _, e := range entries {
		s.metrics.RecordConfidence(ctx, sec.Style.ID(), string(e.Tier), e.Confidence, e.RawConfidence)
	}
	return entries
}
