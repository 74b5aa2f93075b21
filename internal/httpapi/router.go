// Package httpapi wires the memory/claim orchestrators, retrieval and
// extraction services, the event bus, and the SSE adapter behind the HTTP
// surface of spec §6, following the teacher's stdlib-ServeMux-plus-
// middleware-chain server layout.
package httpapi

import (
	"net/http"

	"github.com/mnexium/memory-substrate/internal/bus"
	"github.com/mnexium/memory-substrate/internal/claimorch"
	"github.com/mnexium/memory-substrate/internal/extraction"
	"github.com/mnexium/memory-substrate/internal/memoryorch"
	"github.com/mnexium/memory-substrate/internal/retrieval"
	"github.com/mnexium/memory-substrate/internal/storage"
)

// Dependencies bundles everything the router needs to build handlers.
type Dependencies struct {
	Store            storage.Facade
	Bus              *bus.Bus
	Memories         *memoryorch.Orchestrator
	Claims           *claimorch.Orchestrator
	Retrieval        *retrieval.Service
	Extraction       *extraction.Service
	DefaultProjectID string
	RateLimiter      *RateLimiter
}

// NewRouter builds the full HTTP handler tree: health check outside project
// resolution, every /api/v1 route behind project resolution, the whole
// thing behind rate limiting and security headers.
func NewRouter(deps Dependencies) http.Handler {
	mem := &memoriesHandlers{store: deps.Store, memories: deps.Memories, retrieval: deps.Retrieval, extraction: deps.Extraction}
	claims := &claimsHandlers{store: deps.Store, claims: deps.Claims}
	events := &eventsHandlers{bus: deps.Bus}

	api := http.NewServeMux()

	api.HandleFunc("GET /api/v1/events/memories", events.subscribe)

	api.HandleFunc("GET /api/v1/memories", mem.list)
	api.HandleFunc("POST /api/v1/memories", mem.create)
	api.HandleFunc("GET /api/v1/memories/search", mem.search)
	api.HandleFunc("POST /api/v1/memories/extract", mem.extract)
	api.HandleFunc("GET /api/v1/memories/superseded", mem.listSuperseded)
	api.HandleFunc("GET /api/v1/memories/recalls", mem.recalls)
	api.HandleFunc("GET /api/v1/memories/{id}", mem.get)
	api.HandleFunc("PATCH /api/v1/memories/{id}", mem.patch)
	api.HandleFunc("DELETE /api/v1/memories/{id}", mem.delete)
	api.HandleFunc("GET /api/v1/memories/{id}/claims", mem.claims)
	api.HandleFunc("POST /api/v1/memories/{id}/restore", mem.restore)

	api.HandleFunc("POST /api/v1/claims", claims.create)
	api.HandleFunc("POST /api/v1/claims/{id}/retract", claims.retract)
	api.HandleFunc("GET /api/v1/claims/{id}", claims.get)
	api.HandleFunc("GET /api/v1/claims/subject/{subjectId}/truth", claims.truth)
	api.HandleFunc("GET /api/v1/claims/subject/{subjectId}/slot/{slot}", claims.slot)
	api.HandleFunc("GET /api/v1/claims/subject/{subjectId}/slots", claims.slots)
	api.HandleFunc("GET /api/v1/claims/subject/{subjectId}/graph", claims.graph)
	api.HandleFunc("GET /api/v1/claims/subject/{subjectId}/history", claims.history)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("/api/v1/", projectMiddleware(deps.DefaultProjectID)(api))

	var handler http.Handler = mux
	if deps.RateLimiter != nil {
		handler = rateLimitMiddleware(handler, deps.RateLimiter)
	}
	handler = securityHeadersMiddleware(handler)
	return handler
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
