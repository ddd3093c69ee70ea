// Package server exposes the translation pipeline over HTTP.
//
// Routes:
//
//   - POST /v1/translate — run the pipeline for one sentence
//   - GET /v1/audio/{ref} — stream a stored narration artifact
//   - GET /healthz, GET /readyz — probes (see [internal/health])
//   - GET /metrics — Prometheus scrape endpoint
//
// The observe middleware wraps the whole mux, so every request carries a
// trace span, a correlation ID header and a duration metric.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/lingocast/internal/health"
	"github.com/MrWong99/lingocast/internal/observe"
	"github.com/MrWong99/lingocast/internal/translate"
)

// maxBodyBytes caps inbound bodies. Requests carry single sentences, so the
// limit is generous.
const maxBodyBytes = 1 << 20

// Translator runs the translation pipeline. Implemented by
// [internal/translate.Service].
type Translator interface {
	Translate(ctx context.Context, req translate.Request) (*translate.Translation, error)
}

// ArtifactStore opens stored narration artifacts by reference. Implemented by
// [internal/audiostore.Store].
type ArtifactStore interface {
	Open(ref string) (*os.File, error)
}

// Option is a functional option for [New].
type Option func(*Server)

// WithHealth installs the handler behind /healthz and /readyz. Without it the
// probes run with no checkers, i.e. ready as soon as the process serves.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server is the HTTP surface over the pipeline.
type Server struct {
	translator Translator
	artifacts  ArtifactStore
	health     *health.Handler
	metrics    *observe.Metrics
}

// New constructs a Server over the pipeline and the artifact store.
func New(translator Translator, artifacts ArtifactStore, opts ...Option) *Server {
	s := &Server{
		translator: translator,
		artifacts:  artifacts,
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler assembles the route table wrapped in the observe middleware. The
// returned handler is what [net/http.Server] should serve.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/translate", s.handleTranslate)
	mux.HandleFunc("GET /v1/audio/{ref}", s.handleAudio)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
