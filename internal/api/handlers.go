package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
)

// Version is reported by the health check
const Version = "1.0.0"

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// PaginationResponse wraps one page of a listing
type PaginationResponse struct {
	Items      interface{} `json:"items"`
	TotalCount int         `json:"totalCount"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}

// Health represents the health check response
type Health struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Storage      string            `json:"storage"`
	Timestamp    string            `json:"timestamp"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// healthCheckHandler pings every registered dependency
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:    "ok",
		Version:   Version,
		Storage:   s.config.Storage,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	code := http.StatusOK

	for _, name := range names {
		if health.Dependencies == nil {
			health.Dependencies = make(map[string]string, len(names))
		}

		if err := s.checks[name](r.Context()); err != nil {
			s.logger.Warn("Health check failed", "dependency", name, "error", err)
			health.Dependencies[name] = "unavailable"
			health.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}

		health.Dependencies[name] = "ok"
	}

	s.respondWithJSON(w, code, ApiResponse{
		Success: code == http.StatusOK,
		Data:    health,
	})
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched when optional is set.
func decodeBody(r *http.Request, v interface{}, optional bool) error {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.NewInvalidInputError("Invalid request payload")
	}

	return nil
}

func queryInt(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)

	if err != nil {
		return 0, apperrors.NewInvalidInputError(fmt.Sprintf("%s must be an integer", key))
	}

	return n, nil
}

func queryBool(q url.Values, key string) (*bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}

	b, err := strconv.ParseBool(raw)

	if err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("%s must be true or false", key))
	}

	return &b, nil
}

// invalidQuery turns an enum parse failure into a bad request
func invalidQuery(err error) error {
	return apperrors.NewInvalidInputError(err.Error())
}

// respondWithServiceError maps err onto its HTTP status and envelope
func (s *Server) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.StatusCode(err)
	message := err.Error()

	var (
		transitionErr *lifecycle.TransitionError
		validationErr *models.ValidationError
		appErr        *apperrors.AppError
		details       interface{}
	)

	switch {
	case errors.As(err, &transitionErr):
		details = map[string]interface{}{
			"status":    transitionErr.Status,
			"operation": transitionErr.Operation,
		}
	case errors.As(err, &validationErr):
		details = map[string]interface{}{"problems": validationErr.Problems}
	case errors.As(err, &appErr) && len(appErr.Context) > 0:
		details = appErr.Context
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path)

		if code == http.StatusInternalServerError {
			message = "Internal server error"
		}
	}

	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
		Details: details,
	})
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
	})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)

	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
