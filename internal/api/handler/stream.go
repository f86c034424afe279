package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Deharath/prompt-lab-sub000/internal/api/response"
	"github.com/Deharath/prompt-lab-sub000/internal/job"
)

// NewStreamJobHandler returns an http.HandlerFunc for GET /jobs/{id}/stream.
//
// For a terminal job the stored record comes back as plain JSON. Otherwise
// the response is an SSE stream: one unnamed data event per token, then
// exactly one named terminal event (metrics on success, error on failure).
// Errors after the stream has started cannot change the HTTP status; they
// are relayed as the terminal error event.
func NewStreamJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		j, events, err := svc.OpenStream(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		if events == nil {
			response.JSON(w, j)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Error(w, http.StatusInternalServerError, "Streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for ev := range events {
			switch ev.Type {
			case job.EventToken:
				writeSSE(w, "", map[string]string{"token": ev.Token})
			case job.EventMetrics:
				writeSSE(w, "metrics", ev.Job)
			case job.EventError:
				writeSSE(w, "error", map[string]string{"error": ev.Message})
			}
			flusher.Flush()
		}
	}
}

// writeSSE writes one server-sent event. An empty name produces an unnamed
// data-only event.
func writeSSE(w http.ResponseWriter, name string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	if name != "" {
		fmt.Fprintf(w, "event: %s\n", name)
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
}
