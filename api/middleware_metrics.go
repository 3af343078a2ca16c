package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MetricsPath serves the dashboard and is never measured itself
const MetricsPath = "/api/v1/admin/metrics"

const slowRequest = time.Second

// MetricsMiddleware traces each request into the collector returned by metrics
func MetricsMiddleware(metrics func() *MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == MetricsPath || path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			requestID := RequestIDFrom(r.Context())
			if requestID == "" {
				requestID = uuid.New().String()
			}
			trace := &RequestTrace{
				RequestID: requestID,
				Method:    r.Method,
				Path:      path,
				StartTime: time.Now(),
				DBQueries: make([]DBQueryTrace, 0),
			}
			ctx, recorder := withQueryRecording(r.Context(), trace)
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r.WithContext(ctx))

			// the handler may still be running after a timeout, so copy under the lock
			recorder.mu.Lock()
			done := *trace
			done.DBQueries = append([]DBQueryTrace(nil), trace.DBQueries...)
			recorder.mu.Unlock()

			done.TotalDuration = time.Since(done.StartTime)
			done.Status = rw.statusCode
			if rw.statusCode >= 400 {
				done.Error = http.StatusText(rw.statusCode)
			}
			metrics().RecordTrace(done)

			if done.TotalDuration > slowRequest {
				zap.S().Warnw("slow request",
					"requestId", requestID,
					"method", r.Method,
					"path", path,
					"duration", done.TotalDuration,
					"status", rw.statusCode,
					"dbQueries", len(done.DBQueries),
					"dbTime", done.DBTotalTime,
				)
			}
		})
	}
}

// responseWriter captures the status code. It implements http.Hijacker so
// websocket upgrades pass through.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Hijack implements http.Hijacker
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}
