package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mnexium/memory-substrate/internal/claimorch"
	"github.com/mnexium/memory-substrate/internal/storage"
	"github.com/mnexium/memory-substrate/pkg/model"
)

type claimsHandlers struct {
	store  storage.Facade
	claims *claimorch.Orchestrator
}

type createClaimBody struct {
	ClaimID        string  `json:"claim_id"`
	SubjectID      string  `json:"subject_id"`
	Predicate      string  `json:"predicate"`
	ObjectValue    string  `json:"object_value"`
	Slot           string  `json:"slot"`
	ClaimType      string  `json:"claim_type"`
	Confidence     float64 `json:"confidence"`
	Importance     float64 `json:"importance"`
	Tags           []string `json:"tags"`
	SourceMemoryID string  `json:"source_memory_id"`
}

// create handles POST /api/v1/claims.
func (h *claimsHandlers) create(w http.ResponseWriter, r *http.Request) {
	var body createClaimBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidationError(w, "invalid_json_body", err.Error())
		return
	}
	if strings.TrimSpace(body.Predicate) == "" {
		writeValidationError(w, "predicate_required", "predicate is required")
		return
	}
	if strings.TrimSpace(body.ObjectValue) == "" {
		writeValidationError(w, "object_value_required", "object_value is required")
		return
	}

	claim, err := h.claims.Create(r.Context(), projectIDFromContext(r.Context()), claimorch.CreateInput{
		ClaimID:        body.ClaimID,
		SubjectID:      body.SubjectID,
		Predicate:      body.Predicate,
		ObjectValue:    body.ObjectValue,
		Slot:           body.Slot,
		ClaimType:      model.ClaimType(body.ClaimType),
		Confidence:     body.Confidence,
		Importance:     body.Importance,
		Tags:           body.Tags,
		SourceMemoryID: body.SourceMemoryID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, claim)
}

type retractBody struct {
	Reason string `json:"reason"`
}

// retract handles POST /api/v1/claims/:id/retract.
func (h *claimsHandlers) retract(w http.ResponseWriter, r *http.Request) {
	var body retractBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	result, err := h.claims.Retract(r.Context(), projectIDFromContext(r.Context()), r.PathValue("id"), body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// get handles GET /api/v1/claims/:id: claim + assertions + edges +
// supersession chain (edges of type "supersedes").
func (h *claimsHandlers) get(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	id := r.PathValue("id")

	claim, err := h.store.GetClaim(r.Context(), projectID, id)
	if err != nil {
		writeError(w, storage.WrapNotFound(err, "claim_not_found"))
		return
	}
	assertions, err := h.store.GetClaimAssertions(r.Context(), projectID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	edges, err := h.store.GetClaimEdges(r.Context(), projectID, id, "")
	if err != nil {
		writeError(w, err)
		return
	}
	supersedes, err := h.store.GetClaimEdges(r.Context(), projectID, id, model.EdgeSupersedes)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"claim":             claim,
		"assertions":        assertions,
		"edges":             edges,
		"supersession_chain": supersedes,
	})
}

// truth handles GET /api/v1/claims/subject/:subjectId/truth.
func (h *claimsHandlers) truth(w http.ResponseWriter, r *http.Request) {
	includeSource := parseBoolParam(r.URL.Query().Get("include_source"))
	slots, err := h.store.GetCurrentTruth(r.Context(), projectIDFromContext(r.Context()), r.PathValue("subjectId"), includeSource)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// slot handles GET /api/v1/claims/subject/:subjectId/slot/:slot.
func (h *claimsHandlers) slot(w http.ResponseWriter, r *http.Request) {
	view, err := h.store.GetCurrentSlot(r.Context(), projectIDFromContext(r.Context()), r.PathValue("subjectId"), r.PathValue("slot"))
	if err != nil {
		writeError(w, storage.WrapNotFound(err, "slot_not_found"))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// slots handles GET /api/v1/claims/subject/:subjectId/slots: grouped by
// status (active/superseded/other).
func (h *claimsHandlers) slots(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r.URL.Query().Get("limit"), 0)
	views, err := h.store.GetSlots(r.Context(), projectIDFromContext(r.Context()), r.PathValue("subjectId"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	grouped := map[string][]storage.SlotView{"active": {}, "superseded": {}, "other": {}}
	for _, v := range views {
		switch v.Status {
		case model.SlotStatusActive:
			grouped["active"] = append(grouped["active"], v)
		case model.SlotStatusSuperseded:
			grouped["superseded"] = append(grouped["superseded"], v)
		default:
			grouped["other"] = append(grouped["other"], v)
		}
	}
	writeJSON(w, http.StatusOK, grouped)
}

// graph handles GET /api/v1/claims/subject/:subjectId/graph.
func (h *claimsHandlers) graph(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r.URL.Query().Get("limit"), 0)
	graph, err := h.store.GetClaimGraph(r.Context(), projectIDFromContext(r.Context()), r.PathValue("subjectId"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

// history handles GET /api/v1/claims/subject/:subjectId/history.
func (h *claimsHandlers) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseIntParam(q.Get("limit"), 0)
	entries, err := h.store.GetClaimHistory(r.Context(), projectIDFromContext(r.Context()), r.PathValue("subjectId"), q.Get("slot"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}
