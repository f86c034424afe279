// Package response writes the service's JSON wire shapes. Errors are always
// {"error": "<message>"}; success bodies are written as-is.
package response

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

func Created(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusCreated, v)
}

func Accepted(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusAccepted, v)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Error(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
