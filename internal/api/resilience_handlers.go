package api

import (
	"net/http"
	"strings"

	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
)

// endpointLimitRequest overrides the bucket of one "METHOD:/route/template" key
type endpointLimitRequest struct {
	Endpoint   string  `json:"endpoint"`
	MaxTokens  float64 `json:"max_tokens"`
	RefillRate float64 `json:"refill_rate"`
}

// getCircuitBreakerStatusHandler reports the breaker that sheds non-essential routes
func (s *Server) getCircuitBreakerStatusHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"breaker":         s.gracefulDegradation.GetMetrics(),
			"essentialRoutes": s.gracefulDegradation.EssentialPrefixes(),
		},
	})
}

func (s *Server) resetCircuitBreakerHandler(w http.ResponseWriter, r *http.Request) {
	s.gracefulDegradation.Reset()

	s.logger.Info("Circuit breaker reset", "actor", lifecycle.ActorFrom(r.Context()))

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Circuit breaker reset successfully",
		},
	})
}

func (s *Server) getRateLimitsHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"global_metrics":  s.rateLimiter.GetMetrics(),
			"endpoint_limits": s.endpointRateLimiter.GetAllLimits(),
		},
	})
}

func (s *Server) setEndpointRateLimitHandler(w http.ResponseWriter, r *http.Request) {
	var req endpointLimitRequest

	if err := decodeBody(r, &req, false); err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	req.Endpoint = strings.TrimSpace(req.Endpoint)

	if req.Endpoint == "" {
		s.respondWithError(w, http.StatusBadRequest, "Endpoint is required")
		return
	}

	if method, path, ok := strings.Cut(req.Endpoint, ":"); !ok || method == "" || !strings.HasPrefix(path, "/") {
		s.respondWithError(w, http.StatusBadRequest, "Endpoint must look like METHOD:/route/template")
		return
	}

	if req.MaxTokens <= 0 || req.RefillRate <= 0 {
		s.respondWithError(w, http.StatusBadRequest, "MaxTokens and RefillRate must be greater than zero")
		return
	}

	s.endpointRateLimiter.SetLimit(req.Endpoint, req.MaxTokens, req.RefillRate)

	s.logger.Info("Endpoint rate limit updated",
		"endpoint", req.Endpoint,
		"maxTokens", req.MaxTokens,
		"refillRate", req.RefillRate,
		"actor", lifecycle.ActorFrom(r.Context()))

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: req})
}
