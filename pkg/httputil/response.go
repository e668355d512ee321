package httputil

import (
	"encoding/json"
	"net/http"

	api_models "wolf-backend/internal/models"

	"go.uber.org/zap"
)

// RespondJSON writes a JSON response with the given status code and payload.
func RespondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Can't write header again here, just log the error
		zap.S().Warnw("Error encoding JSON response", "status", statusCode, "error", err)
	}
}

// RespondError writes a JSON error response with the given status code and message.
func RespondError(w http.ResponseWriter, statusCode int, message string) {
	RespondJSON(w, statusCode, api_models.ErrorResponse{Error: message})
}
