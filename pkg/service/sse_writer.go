package service

import (
	"net/http"
	"time"

	"github.com/agentmesh/a2a-core/pkg/a2a"
)

// sseHeartbeat keeps intermediaries from reaping idle streams.
const sseHeartbeat = 25 * time.Second

/*
StreamSSE writes an event channel to the response as Server-Sent Events,
one `data: <json>\n\n` frame per event, with comment heartbeats while the
stream idles. frame converts each event to its wire payload, letting the
JSON-RPC endpoint wrap events in response envelopes while REST sends
them bare. Returns when the channel closes or the client disconnects.
*/
func StreamSSE(w http.ResponseWriter, r *http.Request, events <-chan a2a.Event, frame func(a2a.Event) ([]byte, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	if frame == nil {
		frame = a2a.MarshalEvent
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}

			payload, err := frame(event)
			if err != nil {
				continue
			}

			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
