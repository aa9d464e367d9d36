package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/italolelis/potd_downloader/internal/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const RequestIDHeader = "X-Request-ID"

type requestKey struct{}

// requestState is shared by the middlewares and the handlers of one request.
type requestState struct {
	id string

	mu          sync.Mutex
	annotations []any
}

func stateFromContext(ctx context.Context) *requestState {
	s, _ := ctx.Value(requestKey{}).(*requestState)

	return s
}

// RequestID tags each request with an ID, reusing an upstream X-Request-ID header when
// present. The ID is echoed in the response and added to the context logger, so a cycle
// started through the API carries it on every record.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestKey{}, &requestState{id: id})
		ctx = logctx.With(ctx, "request_id", id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the ID set by RequestID, or an empty string.
func GetRequestID(ctx context.Context) string {
	if s := stateFromContext(ctx); s != nil {
		return s.id
	}

	return ""
}

// Annotate adds key/value pairs to the access log record and span of the current request,
// e.g. the ID and trigger of the cycle a request started. Outside RequestID it does nothing.
func Annotate(ctx context.Context, args ...any) {
	s := stateFromContext(ctx)
	if s == nil {
		return
	}

	s.mu.Lock()
	s.annotations = append(s.annotations, args...)
	s.mu.Unlock()
}

func annotations(ctx context.Context) []any {
	s := stateFromContext(ctx)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]any(nil), s.annotations...)
}

// responseRecorder captures the status code and body size of a response.
type responseRecorder struct {
	http.ResponseWriter

	status      int
	size        int64
	wroteHeader bool
}

// recordResponse wraps w, reusing the recorder of an outer middleware when there is one.
func recordResponse(w http.ResponseWriter) *responseRecorder {
	if rec, ok := w.(*responseRecorder); ok {
		return rec
	}

	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	rw.status = code
	rw.wroteHeader = true

	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}

	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)

	return n, err
}

// route returns the chi route pattern, which keeps labels bounded, or the raw path.
func route(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}

	return r.URL.Path
}

// HTTPLogging logs one access record per request with the annotations its handler added.
// Server errors are logged at ERROR, client errors at WARN and everything else at INFO.
func HTTPLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()

		rec := recordResponse(w)
		next.ServeHTTP(rec, r)

		attrs := append([]any{
			"method", r.Method,
			"route", route(r),
			"path", r.URL.Path,
			"status", rec.status,
			"size", rec.size,
			"duration_ms", time.Since(start).Milliseconds(),
		}, annotations(ctx)...)

		logger := logctx.LoggerFromContext(ctx)

		switch {
		case rec.status >= http.StatusInternalServerError:
			logger.ErrorContext(ctx, "http request completed", attrs...)
		case rec.status >= http.StatusBadRequest:
			logger.WarnContext(ctx, "http request completed", attrs...)
		default:
			logger.InfoContext(ctx, "http request completed", attrs...)
		}
	})
}

// HTTPMiddleware records RED metrics and a span for every request.
type HTTPMiddleware struct {
	telemetry *Telemetry
}

func NewHTTPMiddleware(telemetry *Telemetry) *HTTPMiddleware {
	return &HTTPMiddleware{telemetry: telemetry}
}

func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.telemetry == nil {
			next.ServeHTTP(w, r)

			return
		}

		start := time.Now()

		m.telemetry.IncrementHTTPInFlight()
		defer m.telemetry.DecrementHTTPInFlight()

		ctx, span := m.telemetry.Tracer().Start(r.Context(), "http_request")
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
			attribute.String("http.user_agent", r.UserAgent()),
			attribute.String("http.request_id", GetRequestID(ctx)),
		)

		rec := recordResponse(w)
		next.ServeHTTP(rec, r.WithContext(ctx))

		path := route(r)

		span.SetAttributes(
			attribute.String("http.route", path),
			attribute.Int("http.status_code", rec.status),
			attribute.Int64("http.response_size", rec.size),
		)
		span.SetAttributes(annotationAttrs(annotations(ctx))...)

		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(rec.status))
		}

		m.telemetry.RecordHTTPRequest(r.Method, path, statusClass(rec.status), time.Since(start))
	})
}

func annotationAttrs(args []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(args)/2)

	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}

		attrs = append(attrs, attribute.String(key, fmt.Sprint(args[i+1])))
	}

	return attrs
}

func statusClass(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
