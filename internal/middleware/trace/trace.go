// Package trace tags collaborator requests with request IDs and logs them.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	applog "ledgerlite/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID carries the request ID to the collaborator.
	HeaderRequestID = "X-Request-ID"
)

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests       int64
	FailedRequests      int64
	AverageResponseTime int64 // in microseconds
}

// Transport is an http.RoundTripper that adds a request ID header and logs
// every round trip through the structured logger.
type Transport struct {
	base    http.RoundTripper
	logger  *applog.StructuredLogger
	metrics *Metrics

	completed   atomic.Int64
	totalMicros atomic.Int64
}

// NewTransport wraps base; a nil base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper, logger *applog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Transport{
		base:    base,
		logger:  applog.NewStructuredLogger(logger.WithComponent(applog.ComponentAPI)),
		metrics: &Metrics{},
	}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	requestID := GetRequestID(r.Context())
	if requestID == "" {
		requestID = GenerateRequestID()
	}

	// RoundTrippers must not modify the caller's request.
	r = r.Clone(WithRequestID(r.Context(), requestID))
	r.Header.Set(HeaderRequestID, requestID)

	t.logger.LogHTTPStart(r.Context(), r, requestID)
	atomic.AddInt64(&t.metrics.TotalRequests, 1)

	resp, err := t.base.RoundTrip(r)

	duration := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	t.observe(duration, err != nil || status >= 400)
	t.logger.LogHTTPEnd(r.Context(), r, requestID, status, duration.Milliseconds(), err)

	return resp, err
}

func (t *Transport) observe(d time.Duration, failed bool) {
	if failed {
		atomic.AddInt64(&t.metrics.FailedRequests, 1)
	}
	t.totalMicros.Add(d.Microseconds())
	t.completed.Add(1)
}

// GetMetrics returns current metrics. AverageResponseTime is the mean over
// completed round trips.
func (t *Transport) GetMetrics() Metrics {
	var avg int64
	if n := t.completed.Load(); n > 0 {
		avg = t.totalMicros.Load() / n
	}
	return Metrics{
		TotalRequests:       atomic.LoadInt64(&t.metrics.TotalRequests),
		FailedRequests:      atomic.LoadInt64(&t.metrics.FailedRequests),
		AverageResponseTime: avg,
	}
}

// Middleware copies an incoming X-Request-ID (or generates one) into the
// request context. The fake collaborator uses it so both sides log the same ID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
	})
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// WithRequestID stores id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
