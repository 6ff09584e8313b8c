package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody mirrors the API envelope so rejected requests look like any other failure
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeRejection(w http.ResponseWriter, status int, retryAfter, message string) {
	if retryAfter != "" {
		w.Header().Set("Retry-After", retryAfter)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Success: false, Error: message})
}
