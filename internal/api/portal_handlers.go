package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// getPortalOrdersHandler returns a manufacturer's pending queue, oldest assignment first
func (s *Server) getPortalOrdersHandler(w http.ResponseWriter, r *http.Request) {
	queue, err := s.services.Metrics.Portal(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: queue})
}

// portalShipHandler lets a manufacturer ship one of its own orders
func (s *Server) portalShipHandler(w http.ResponseWriter, r *http.Request) {
	var req shipRequest

	if err := decodeBody(r, &req, false); err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	vars := mux.Vars(r)

	order, err := s.services.Engine.ShipForManufacturer(r.Context(), vars["id"], vars["orderId"], req.Carrier, req.TrackingNumber)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}
