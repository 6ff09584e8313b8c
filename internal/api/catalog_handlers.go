package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
)

func (s *Server) getManufacturersHandler(w http.ResponseWriter, r *http.Request) {
	manufacturers, err := s.services.Catalog.ListManufacturers(r.Context())

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: manufacturers})
}

func (s *Server) getManufacturerHandler(w http.ResponseWriter, r *http.Request) {
	manufacturer, err := s.services.Catalog.GetManufacturer(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: manufacturer})
}

// getManufacturerPerformanceHandler returns the derived scorecard of a manufacturer
func (s *Server) getManufacturerPerformanceHandler(w http.ResponseWriter, r *http.Request) {
	perf, err := s.services.Metrics.ManufacturerPerformance(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: perf})
}

func (s *Server) getProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := s.services.Catalog.ListProducts(r.Context(), r.URL.Query().Get("manufacturer"))

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: products})
}

func (s *Server) getProductHandler(w http.ResponseWriter, r *http.Request) {
	product, err := s.services.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: product})
}

// getEmailsHandler lists the outbound email log, newest first
func (s *Server) getEmailsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.EmailFilter{
		OrderID:        q.Get("order"),
		ManufacturerID: q.Get("manufacturer"),
	}

	if raw := q.Get("type"); raw != "" {
		t, err := models.ParseEmailType(raw)
		if err != nil {
			s.respondWithServiceError(w, r, invalidQuery(err))
			return
		}
		filter.Type = t
	}

	limit, err := queryInt(q, "limit")

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	filter.Limit = limit

	emails, err := s.services.Catalog.ListEmailLogs(r.Context(), filter)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: emails})
}

// getActivityHandler lists the activity log, newest first
func (s *Server) getActivityHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := queryInt(q, "limit")

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	activities, err := s.services.Catalog.ListActivityLogs(r.Context(), models.ActivityFilter{
		OrderID: q.Get("order"),
		Action:  models.ActivityAction(strings.ToUpper(q.Get("action"))),
		Limit:   limit,
	})

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: activities})
}
