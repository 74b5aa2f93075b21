package httpapi

import (
	"net/http"

	"github.com/mnexium/memory-substrate/internal/bus"
	"github.com/mnexium/memory-substrate/internal/sse"
)

type eventsHandlers struct {
	bus *bus.Bus
}

// subscribe handles GET /api/v1/events/memories (spec §4.G).
func (h *eventsHandlers) subscribe(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("subject_id")
	if err := sse.Stream(w, r, h.bus, projectIDFromContext(r.Context()), subjectID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "server_error", Message: err.Error()})
	}
}
