// Package handlers provides HTTP handlers for the barcode upload service.
package handlers

import (
	"encoding/json"
	"net/http"
)

// MessageDTO is the body of every error response.
type MessageDTO struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageDTO{Message: message})
}
