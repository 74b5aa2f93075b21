// Package sse adapts internal/bus subscriptions to an http.ResponseWriter
// using the text/event-stream protocol.
package sse

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/mnexium/memory-substrate/internal/bus"
)

const heartbeatInterval = 30 * time.Second

// Stream writes response headers for event-stream, emits a connected event,
// subscribes to (projectID, subjectID) on b, and blocks relaying events and
// 30s heartbeats until the request context is canceled (client disconnect).
// It unsubscribes exactly once on return.
func Stream(w http.ResponseWriter, r *http.Request, b *bus.Bus, projectID, subjectID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("sse: response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	out := make(chan bus.Event, 32)
	unsubscribe := b.Subscribe(projectID, subjectID, func(e bus.Event) {
		select {
		case out <- e:
		default:
			log.Printf("sse: dropping event %s for %s/%s, subscriber too slow", e.Type, projectID, subjectID)
		}
	})
	defer unsubscribe()

	writeEvent(w, flusher, bus.Event{
		Type:      "connected",
		ProjectID: projectID,
		SubjectID: subjectID,
		Data: map[string]any{
			"project_id": projectID,
			"subject_id": subjectID,
			"timestamp":  time.Now().UTC(),
		},
		Timestamp: time.Now().UTC(),
	})

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-out:
			writeEvent(w, flusher, evt)
		case <-ticker.C:
			writeEvent(w, flusher, bus.Event{
				Type:      "heartbeat",
				ProjectID: projectID,
				SubjectID: subjectID,
				Data:      map[string]any{"timestamp": time.Now().UTC()},
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, evt bus.Event) {
	payload, err := json.Marshal(evt.Data)
	if err != nil {
		log.Printf("sse: failed to marshal event %s: %v", evt.Type, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
	flusher.Flush()
}
