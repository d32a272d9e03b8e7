package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// handleHealth reports liveness together with the active pipeline settings, so a
// caller can tell which configuration answered its requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":         "healthy",
		"service":        "allocator",
		"uptime_seconds": int64(time.Since(s.started) / time.Second),
	}

	if s.allocator != nil {
		cfg := s.allocator.Config()
		response["pipeline"] = map[string]interface{}{
			"clusters":          cfg.Clusters,
			"forecast_method":   string(cfg.Forecast.Method),
			"extend_horizon":    cfg.ExtendHorizon,
			"extended_features": cfg.Extended,
			"workers":           cfg.Workers,
		}
	}
	if s.limiter != nil {
		response["rate_limited_clients"] = s.limiter.size()
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
