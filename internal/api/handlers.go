package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// Health represents the health check response
type Health struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]string      `json:"checks"`
	Outbox    map[string]int         `json:"outbox,omitempty"`
	Notifier  map[string]interface{} `json:"notifier,omitempty"`
}

// healthCheckHandler reports the reachability of every backing store. Any
// failed check degrades the response to 503.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	health := Health{
		Status:    "ok",
		Version:   s.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]string, len(s.checks)),
	}

	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			s.logger.Warn("Health check failed", "check", name, "error", err)
			health.Checks[name] = "unavailable"
			health.Status = "degraded"
			continue
		}
		health.Checks[name] = "ok"
	}

	if s.outbox != nil {
		counts, err := s.outbox.CountByStatus(ctx)
		if err == nil {
			health.Outbox = make(map[string]int, len(counts))
			for status, n := range counts {
				health.Outbox[string(status)] = n
			}
		}
	}

	if s.breaker != nil {
		health.Notifier = s.breaker.GetMetrics()
	}

	code := http.StatusOK
	if health.Status != "ok" {
		code = http.StatusServiceUnavailable
	}

	s.respondWithJSON(w, code, ApiResponse{
		Success: code == http.StatusOK,
		Data:    health,
	})
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
	})
}

// respondWithAppError maps err to its HTTP form and sends it
func (s *Server) respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)

	if appErr.StatusCode >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err, "method", r.Method, "path", r.URL.Path)
	}

	if appErr.Retryable {
		w.Header().Set("Retry-After", "1")
	}

	var details interface{}
	if len(appErr.Context) > 0 {
		details = appErr.Context
	}

	s.respondWithJSON(w, appErr.StatusCode, ApiResponse{
		Success: false,
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: details,
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

// decodeAndValidate reads a JSON body into dst and validates it
func (s *Server) decodeAndValidate(r *http.Request, dst interface{}) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return invalidBody(err)
	}

	if err := s.validate.Struct(dst); err != nil {
		return validationFailed(err)
	}

	return nil
}
