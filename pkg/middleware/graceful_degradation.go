package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/fulfillment-tracker/pkg/circuitbreaker"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

// GracefulDegradation sheds non-essential traffic once handlers start failing
type GracefulDegradation struct {
	breaker         *circuitbreaker.CircuitBreaker
	essentialPrefix []string
	logger          logger.Logger
}

// NewGracefulDegradation creates a new graceful degradation middleware.
// Paths under any of essentialPrefixes bypass the breaker.
func NewGracefulDegradation(logger logger.Logger, essentialPrefixes ...string) *GracefulDegradation {
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		FailureThreshold: 10,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 5,
	})

	return &GracefulDegradation{
		breaker:         breaker,
		essentialPrefix: essentialPrefixes,
		logger:          logger,
	}
}

// Middleware returns a middleware function
func (gd *GracefulDegradation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		essential := gd.isEssential(r.URL.Path)

		if !essential && !gd.breaker.Allow() {
			gd.logger.Warn("Circuit is open, request rejected",
				"path", r.URL.Path,
				"method", r.Method,
				"state", gd.breaker.GetState().String())
			writeRejection(w, http.StatusServiceUnavailable, "30", "Service is temporarily unavailable. Please try again later.")
			return
		}

		sw := &statusCodeWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)

		if essential {
			return
		}

		switch {
		case sw.statusCode >= 500:
			gd.breaker.Failure()
		case sw.statusCode < 400:
			gd.breaker.Success()
		}
	})
}

func (gd *GracefulDegradation) isEssential(path string) bool {
	for _, prefix := range gd.essentialPrefix {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// statusCodeWriter captures the status code written by the wrapped handler
type statusCodeWriter struct {
	http.ResponseWriter
	statusCode int
}

func (scw *statusCodeWriter) WriteHeader(code int) {
	scw.statusCode = code
	scw.ResponseWriter.WriteHeader(code)
}

// GetMetrics returns metrics about the circuit breaker
func (gd *GracefulDegradation) GetMetrics() map[string]interface{} {
	return gd.breaker.GetMetrics()
}

// EssentialPrefixes lists the path prefixes that bypass the breaker
func (gd *GracefulDegradation) EssentialPrefixes() []string {
	return append([]string(nil), gd.essentialPrefix...)
}

// Reset resets the circuit breaker
func (gd *GracefulDegradation) Reset() {
	gd.breaker.Reset()
}
