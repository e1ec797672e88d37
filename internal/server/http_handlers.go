package server

import (
	"encoding/json"
	"net/http"

	"resumecrew/internal/errors"
)

// healthHandler reports the service as degraded while the AI circuit breaker
// is open.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "resumecrew",
		"version": s.Version,
	}

	status := http.StatusOK
	if s.AI != nil {
		response["ai"] = s.AI.Stats()
		if !s.AI.IsHealthy() {
			response["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	s.writeJSON(w, status, response)
}

// statsHandler provides server statistics including rate limiting info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "resumecrew",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
			"max_upload_size_bytes":  s.MaxUploadSize,
			"auth_enabled":           len(s.APIKeys) > 0,
		},
	}

	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{
			"enabled": false,
		}
	}

	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMin,
			"burst_capacity":   s.RateLimit.BurstCapacity,
			"by_ip":            s.RateLimit.ByIP,
			"by_api_key":       s.RateLimit.ByAPIKey,
		}
	}

	if s.AI != nil {
		response["ai"] = s.AI.Stats()
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.LogError(err, "Failed to encode response")
	}
}

// writeAppError writes err as JSON using the status its code maps to.
func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := errors.ErrCodeIOFailure
	message := "Internal server error"

	if appErr, ok := errors.As(err); ok {
		status = errors.HTTPStatus(err)
		code = appErr.Code
		message = appErr.Message
	}
	writeErrorResponse(w, http.StatusText(status), message, code, status)
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message, code string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   error,
		Message: message,
		Code:    code,
	}

	_ = json.NewEncoder(w).Encode(response)
}
