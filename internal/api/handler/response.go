package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
)

const encodeErrorBody = `{"error":"internal_error","message":"failed to encode response"}` + "\n"

// JSON writes data as the response body. The body is encoded before the
// status is sent, so an encoding failure still yields a 500.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if data == nil {
		w.WriteHeader(status)
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(encodeErrorBody))
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func Error(w http.ResponseWriter, status int, err string, message string) {
	JSON(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}
