package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsMiddleware records per-request metrics: request counts by
// method, status class, and delivery mode; duration histograms; and a
// gauge of in-flight streaming connections.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		streamRequested := r.Header.Get("Accept") == "text/event-stream"
		if streamRequested {
			StreamingConnections.Inc()
			defer StreamingConnections.Dec()
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		// The request may have turned into a stream regardless of the
		// Accept header; the response content type is what actually
		// happened.
		mode := "sync"
		if streamRequested || strings.HasPrefix(sw.Header().Get("Content-Type"), "text/event-stream") {
			mode = "stream"
		}

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(r.Method, class, mode).Inc()
		RequestDuration.WithLabelValues(r.Method, mode).Observe(time.Since(start).Seconds())
	})
}

// statusWriter captures the response status for the metrics labels while
// staying transparent to streaming writers.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Flush forwards to the wrapped writer so SSE deltas reach the client
// as they are produced.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the wrapped writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
