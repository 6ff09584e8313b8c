package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
)

// RetryResult reports a synchronous dead letter redelivery
type RetryResult struct {
	Message   *models.DeadLetterMessage `json:"message"`
	Delivered bool                      `json:"delivered"`
	Error     string                    `json:"error,omitempty"`
}

func deadLetterID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	if err != nil {
		return 0, apperrors.NewInvalidInputError("Invalid message ID")
	}

	return id, nil
}

// getDeadLettersHandler returns a page of dead letter messages
func (s *Server) getDeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page, err := strconv.Atoi(q.Get("page"))

	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(q.Get("pageSize"))

	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	offset := (page - 1) * pageSize

	status := models.DeadLetterStatus(q.Get("status"))

	switch status {
	case "", models.DeadLetterStatusPending, models.DeadLetterStatusRetrying,
		models.DeadLetterStatusResolved, models.DeadLetterStatusDiscarded:
	default:
		s.respondWithError(w, http.StatusBadRequest, "Unknown dead letter status")
		return
	}

	messages, err := s.services.DeadLetters.List(ctx, status, pageSize, offset)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	total, err := s.services.DeadLetters.Count(ctx, status)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	if messages == nil {
		messages = []*models.DeadLetterMessage{}
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: PaginationResponse{
		Items:      messages,
		TotalCount: total,
		Limit:      pageSize,
		Offset:     offset,
	}})
}

// retryDeadLetterHandler redelivers a pending dead letter message now
func (s *Server) retryDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	id, err := deadLetterID(r)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	message, err := s.services.DeadLetterProcessor.RetryMessage(r.Context(), id)

	if message == nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	result := RetryResult{Message: message, Delivered: err == nil}

	if err != nil {
		s.logger.Warn("Dead letter redelivery failed", "error", err, "messageID", id)
		result.Error = err.Error()
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result})
}

// discardDeadLetterHandler discards a dead letter message
func (s *Server) discardDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := deadLetterID(r)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}

	if err := decodeBody(r, &req, true); err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	if req.Reason == "" {
		req.Reason = "No reason provided"
	}

	message, err := s.services.DeadLetters.GetMessage(ctx, id)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	if message.Status == models.DeadLetterStatusResolved || message.Status == models.DeadLetterStatusDiscarded {
		s.respondWithServiceError(w, r, apperrors.NewConflictError("Dead letter message is already "+string(message.Status)))
		return
	}

	if err := s.services.DeadLetters.MarkAsDiscarded(ctx, id, req.Reason); err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Dead letter message discarded",
			"id":      strconv.FormatInt(id, 10),
		},
	})
}
