package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
)

// orderFilterFrom reads ?status=A,B&source=&manufacturer=&limit=&offset=
func orderFilterFrom(q url.Values) (models.OrderFilter, error) {
	var filter models.OrderFilter

	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := models.ParseOrderStatus(part)
			if err != nil {
				return filter, invalidQuery(err)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if raw := q.Get("source"); raw != "" {
		source, err := models.ParseOrderSource(raw)
		if err != nil {
			return filter, invalidQuery(err)
		}
		filter.Source = source
	}

	filter.ManufacturerID = q.Get("manufacturer")

	var err error

	if filter.Limit, err = queryInt(q, "limit"); err != nil {
		return filter, err
	}

	if filter.Offset, err = queryInt(q, "offset"); err != nil {
		return filter, err
	}

	return filter, nil
}

// getOrdersHandler returns a page of orders, newest first
func (s *Server) getOrdersHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := orderFilterFrom(r.URL.Query())

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	page, err := s.services.Orders.ListOrders(r.Context(), filter)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: page})
}

// createOrderHandler takes in a new order
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var in models.OrderInput

	if err := decodeBody(r, &in, false); err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	order, err := s.services.Engine.Intake(r.Context(), in)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: order})
}

// getOrderByIDHandler returns an order with its product, manufacturer and history
func (s *Server) getOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	detail, err := s.services.Orders.GetOrderDetail(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: detail})
}

// assignOrderHandler routes an order to a manufacturer
func (s *Server) assignOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ManufacturerID string `json:"manufacturerId"`
	}

	if err := decodeBody(r, &req, false); err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	order, err := s.services.Engine.Assign(r.Context(), mux.Vars(r)["id"], req.ManufacturerID)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

type shipRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
}

// shipOrderHandler records the carrier hand-off of an order
func (s *Server) shipOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req shipRequest

	if err := decodeBody(r, &req, false); err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	order, err := s.services.Engine.Ship(r.Context(), mux.Vars(r)["id"], req.Carrier, req.TrackingNumber)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// transitionHandler serves the lifecycle operations that take no input
func (s *Server) transitionHandler(op func(ctx context.Context, orderID string) (*models.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := op(r.Context(), mux.Vars(r)["id"])

		if err != nil {
			s.respondWithServiceError(w, r, err)
			return
		}

		s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
	}
}

// escalateOrderHandler raises an escalation alert on an order
func (s *Server) escalateOrderHandler(w http.ResponseWriter, r *http.Request) {
	alert, err := s.services.Engine.Escalate(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: alert})
}
