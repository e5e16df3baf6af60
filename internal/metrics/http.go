package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPMiddleware records request counts, latency and in-flight requests on
// inst. A nil inst returns next unchanged.
func HTTPMiddleware(inst *Instruments, next http.Handler) http.Handler {
	if inst == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		inst.HTTPInFlight.Inc()
		defer inst.HTTPInFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		inst.ObserveHTTP(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code and calls the underlying WriteHeader.
func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write sends the implicit 200 before the first body byte.
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(w.statusCode)
	}
	return w.ResponseWriter.Write(b)
}

// normalizePath maps request paths onto the fixed route set so unknown
// paths cannot blow up label cardinality.
func normalizePath(path string) string {
	switch path {
	case "/", "/healthz", "/metrics",
		"/v1/answer", "/v1/compare", "/v1/stats", "/v1/report",
		"/v1/export.csv", "/v1/cache", "/v1/cache/stats":
		return path
	}
	if strings.HasPrefix(path, "/v1/") {
		return "/v1/{other}"
	}
	return "/{other}"
}

// statusCode labels the codes the API emits exactly and folds everything
// else into its class.
func statusCode(code int) string {
	switch code {
	case http.StatusOK, http.StatusNoContent,
		http.StatusBadRequest, http.StatusNotFound, http.StatusMethodNotAllowed,
		http.StatusRequestEntityTooLarge, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusServiceUnavailable:
		return strconv.Itoa(code)
	}
	if code < 100 || code >= 600 {
		return strconv.Itoa(code)
	}
	return fmt.Sprintf("%dxx", code/100)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
