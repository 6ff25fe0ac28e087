package observe

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID of every response.
const CorrelationHeader = "X-Correlation-ID"

// responseRecorder captures the status code and body size written by the
// downstream handler.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int64
	wrote   bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.wrote = true
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += int64(n)
	return n, err
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (r *responseRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Middleware wraps an API handler with tracing, metrics and access logging.
//
// The incoming W3C trace context is continued when present. The span is
// renamed to the matched [http.ServeMux] pattern once routing is done, and
// the same pattern labels [Metrics.HTTPRequestDuration] so that run IDs in
// paths do not explode cardinality. The trace ID is echoed in the
// [CorrelationHeader] response header.
//
// A panicking handler is answered with 500 and logged with its trace ID
// instead of tearing down the connection.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set(CorrelationHeader, cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			r = r.WithContext(ctx)
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					span.RecordError(fmt.Errorf("panic: %v", p))
					slog.ErrorContext(ctx, "http: handler panicked",
						"trace_id", cid, "path", r.URL.Path, "panic", p)
					if !rec.wrote {
						http.Error(rec, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					} else {
						rec.status = http.StatusInternalServerError
					}
				}

				duration := time.Since(start)
				route := routeOf(r)
				path := routePath(route)
				span.SetName("HTTP " + r.Method + " " + path)
				span.SetAttributes(
					semconv.HTTPResponseStatusCode(rec.status),
					semconv.HTTPRoute(path),
				)
				if rec.status >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, http.StatusText(rec.status))
				}
				m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
					metric.WithAttributes(
						attribute.String("method", r.Method),
						attribute.String("path", route),
					),
				)

				level := slog.LevelInfo
				if rec.status >= http.StatusInternalServerError {
					level = slog.LevelWarn
				}
				slog.LogAttrs(ctx, level, "request completed",
					slog.String("trace_id", cid),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", rec.status),
					slog.Int64("request_bytes", r.ContentLength),
					slog.Int64("response_bytes", rec.written),
					slog.Duration("duration", duration),
				)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

// routeOf returns the pattern a ServeMux matched for r, or the raw path when
// the request was not routed by one.
func routeOf(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.URL.Path
}

// routePath strips the method and host from a ServeMux pattern, leaving the
// path template ("/v1/runs/{id}").
func routePath(pattern string) string {
	if _, after, ok := strings.Cut(pattern, " "); ok {
		pattern = after
	}
	if i := strings.IndexByte(pattern, '/'); i > 0 {
		pattern = pattern[i:]
	}
	return pattern
}
