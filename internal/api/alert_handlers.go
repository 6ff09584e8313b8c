package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
)

// getAlertsHandler lists alerts, most severe and newest first
func (s *Server) getAlertsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	resolved, err := queryBool(q, "resolved")

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	limit, err := queryInt(q, "limit")

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	filter := models.AlertFilter{
		Resolved:       resolved,
		OrderID:        q.Get("order"),
		ManufacturerID: q.Get("manufacturer"),
		Limit:          limit,
	}

	if raw := q.Get("type"); raw != "" {
		t, err := models.ParseAlertType(raw)
		if err != nil {
			s.respondWithServiceError(w, r, invalidQuery(err))
			return
		}
		filter.Type = t
	}

	alerts, err := s.services.Alerts.List(r.Context(), filter)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: alerts})
}

func (s *Server) getAlertHandler(w http.ResponseWriter, r *http.Request) {
	alert, err := s.services.Alerts.Get(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: alert})
}

// updateAlertHandler resolves an alert. Alerts cannot be reopened.
func (s *Server) updateAlertHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resolved   *bool  `json:"resolved"`
		ResolvedBy string `json:"resolvedBy"`
	}

	if err := decodeBody(r, &req, false); err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	if req.Resolved == nil || !*req.Resolved {
		s.respondWithServiceError(w, r, apperrors.NewInvalidInputError("only resolved: true is supported"))
		return
	}

	alert, err := s.services.Alerts.Resolve(r.Context(), mux.Vars(r)["id"], req.ResolvedBy)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: alert})
}

// scanAlertsHandler runs one alert policy pass immediately
func (s *Server) scanAlertsHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.services.Scanner.ScanOnce(r.Context())

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result})
}

// getDashboardHandler returns the admin overview
func (s *Server) getDashboardHandler(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.services.Metrics.Dashboard(r.Context())

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: dashboard})
}
