package observe

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Middleware wraps a handler with per-request telemetry: it continues the
// W3C trace context from the incoming headers (or starts a new trace), opens
// a server span, mirrors the trace id as X-Correlation-ID, records the
// request duration on m, and logs one completion line per request.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &telemetryHandler{metrics: m, next: next}
	}
}

type telemetryHandler struct {
	metrics *Metrics
	next    http.Handler
	prop    propagation.TraceContext
}

func (h *telemetryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	route := routeLabel(r.URL.Path)

	ctx := h.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
		),
	)
	defer span.End()

	cid := CorrelationID(ctx)
	if cid != "" {
		w.Header().Set("X-Correlation-ID", cid)
	}
	h.prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	h.next.ServeHTTP(sw, r.WithContext(ctx))

	elapsed := time.Since(start)
	h.metrics.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("path", route),
		),
	)
	span.SetAttributes(semconv.HTTPResponseStatusCode(sw.code))

	slog.LogAttrs(ctx, slog.LevelInfo, "request completed",
		slog.String("trace_id", cid),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", sw.code),
		slog.Duration("duration", elapsed),
	)
}

// statusWriter captures the response code for the span and the completion
// log line.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.code = code
	sw.ResponseWriter.WriteHeader(code)
}

// routeLabel collapses per-artifact path segments so span names and metric
// labels stay bounded: audio references are request-unique and would
// otherwise mint one time series per narration.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/v1/audio/") {
		return "/v1/audio/{ref}"
	}
	return path
}
