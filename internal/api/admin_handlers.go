package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vaidashi/marketplace-orders/internal/repository"
)

// PaginationResponse wraps a page of admin listings
type PaginationResponse struct {
	Items    interface{} `json:"items"`
	Count    int         `json:"count"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// getFailedMessagesHandler lists outbox messages that exhausted their retries
func (s *Server) getFailedMessagesHandler(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))

	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(r.URL.Query().Get("pageSize"))

	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	messages, err := s.outbox.ListFailed(r.Context(), pageSize, (page-1)*pageSize)

	if err != nil {
		s.logger.Error("Failed to fetch failed outbox messages", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch failed messages")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: PaginationResponse{
		Items:    messages,
		Count:    len(messages),
		Page:     page,
		PageSize: pageSize,
	}})
}

// retryFailedMessageHandler puts a failed message back in the outbox queue
func (s *Server) retryFailedMessageHandler(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]

	id, err := strconv.ParseInt(idStr, 10, 64)

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid message ID")
		return
	}

	if err := s.outbox.Requeue(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Failed message not found")
			return
		}
		s.logger.Error("Failed to requeue message", "error", err, "messageID", id)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to requeue message")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Message requeued",
			"id":      idStr,
		},
	})
}

// getCircuitBreakerStatusHandler returns the notifier's circuit state
func (s *Server) getCircuitBreakerStatusHandler(w http.ResponseWriter, r *http.Request) {
	if s.breaker == nil {
		s.respondWithError(w, http.StatusNotFound, "Notifier runs in dry-run mode")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.breaker.GetMetrics()})
}

// resetCircuitBreakerHandler closes the notifier's circuit
func (s *Server) resetCircuitBreakerHandler(w http.ResponseWriter, r *http.Request) {
	if s.breaker == nil {
		s.respondWithError(w, http.StatusNotFound, "Notifier runs in dry-run mode")
		return
	}

	s.breaker.Reset()
	s.logger.Info("Notifier circuit breaker reset")

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Circuit breaker reset successfully",
		},
	})
}
