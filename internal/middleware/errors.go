package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError writes the API error body used across the service.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"errorCode":    code,
		"errorMessage": message,
	})
}
