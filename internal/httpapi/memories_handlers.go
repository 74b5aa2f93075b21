package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/mnexium/memory-substrate/internal/extraction"
	"github.com/mnexium/memory-substrate/internal/memoryorch"
	"github.com/mnexium/memory-substrate/internal/retrieval"
	"github.com/mnexium/memory-substrate/internal/storage"
	"github.com/mnexium/memory-substrate/pkg/model"
)

type memoriesHandlers struct {
	store      storage.Facade
	memories   *memoryorch.Orchestrator
	retrieval  *retrieval.Service
	extraction *extraction.Service
}

func parseIntParam(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func parseFloatParam(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

func parseBoolParam(s string) bool {
	v, _ := strconv.ParseBool(s)
	return v
}

// list handles GET /api/v1/memories.
func (h *memoriesHandlers) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		ProjectID:         projectIDFromContext(r.Context()),
		SubjectID:         q.Get("subject_id"),
		Limit:             parseIntParam(q.Get("limit"), 0),
		Offset:            parseIntParam(q.Get("offset"), 0),
		IncludeDeleted:    parseBoolParam(q.Get("include_deleted")),
		IncludeSuperseded: parseBoolParam(q.Get("include_superseded")),
	}
	opts.Normalize()

	page, err := h.store.ListMemories(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// listSuperseded handles GET /api/v1/memories/superseded.
func (h *memoriesHandlers) listSuperseded(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		ProjectID: projectIDFromContext(r.Context()),
		SubjectID: q.Get("subject_id"),
		Limit:     parseIntParam(q.Get("limit"), 0),
		Offset:    parseIntParam(q.Get("offset"), 0),
	}
	opts.Normalize()

	page, err := h.store.ListSupersededMemories(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type createMemoryBody struct {
	ID            string         `json:"id"`
	SubjectID     string         `json:"subject_id"`
	Text          string         `json:"text"`
	Kind          string         `json:"kind"`
	Visibility    string         `json:"visibility"`
	Importance    int            `json:"importance"`
	Confidence    float64        `json:"confidence"`
	IsTemporal    bool           `json:"is_temporal"`
	Tags          []string       `json:"tags"`
	Metadata      map[string]any `json:"metadata"`
	SourceType    string         `json:"source_type"`
	ExtractClaims *bool          `json:"extract_claims"`
	NoSupersede   bool           `json:"no_supersede"`
}

// create handles POST /api/v1/memories (spec §4.E).
func (h *memoriesHandlers) create(w http.ResponseWriter, r *http.Request) {
	var body createMemoryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidationError(w, "invalid_json_body", err.Error())
		return
	}

	extractClaims := true
	if body.ExtractClaims != nil {
		extractClaims = *body.ExtractClaims
	}

	result, err := h.memories.Create(r.Context(), projectIDFromContext(r.Context()), memoryorch.CreateInput{
		ID:            body.ID,
		SubjectID:     body.SubjectID,
		Text:          body.Text,
		Kind:          model.MemoryKind(body.Kind),
		Visibility:    model.Visibility(body.Visibility),
		Importance:    body.Importance,
		Confidence:    body.Confidence,
		IsTemporal:    body.IsTemporal,
		Tags:          body.Tags,
		Metadata:      body.Metadata,
		SourceType:    body.SourceType,
		ExtractClaims: extractClaims,
		NoSupersede:   body.NoSupersede,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Skipped {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      nil,
			"created": false,
			"skipped": true,
			"reason":  result.Reason,
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":               result.ID,
		"subject_id":       result.SubjectID,
		"text":             result.Text,
		"kind":             result.Kind,
		"created":          result.Created,
		"superseded_count": result.SupersededCount,
		"superseded_ids":   result.SupersededIDs,
	})
}

// get handles GET /api/v1/memories/:id.
func (h *memoriesHandlers) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	memory, err := h.store.GetMemory(r.Context(), projectIDFromContext(r.Context()), id)
	if err != nil {
		writeError(w, storage.WrapNotFound(err, "memory_not_found"))
		return
	}
	writeJSON(w, http.StatusOK, memory)
}

type patchMemoryBody struct {
	Text       *string          `json:"text"`
	Kind       *string          `json:"kind"`
	Visibility *string          `json:"visibility"`
	Importance *int             `json:"importance"`
	Confidence *float64         `json:"confidence"`
	IsTemporal *bool            `json:"is_temporal"`
	Tags       []string         `json:"tags"`
	Metadata   map[string]any   `json:"metadata"`
}

// patch handles PATCH /api/v1/memories/:id.
func (h *memoriesHandlers) patch(w http.ResponseWriter, r *http.Request) {
	var body patchMemoryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidationError(w, "invalid_json_body", err.Error())
		return
	}

	in := memoryorch.PatchInput{
		Text:       body.Text,
		Importance: body.Importance,
		Confidence: body.Confidence,
		IsTemporal: body.IsTemporal,
		Tags:       body.Tags,
		Metadata:   body.Metadata,
	}
	if body.Kind != nil {
		k := model.MemoryKind(*body.Kind)
		in.Kind = &k
	}
	if body.Visibility != nil {
		v := model.Visibility(*body.Visibility)
		in.Visibility = &v
	}

	memory, err := h.memories.Patch(r.Context(), projectIDFromContext(r.Context()), r.PathValue("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memory)
}

// delete handles DELETE /api/v1/memories/:id.
func (h *memoriesHandlers) delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.memories.Delete(r.Context(), projectIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// restore handles POST /api/v1/memories/:id/restore.
func (h *memoriesHandlers) restore(w http.ResponseWriter, r *http.Request) {
	result, err := h.memories.Restore(r.Context(), projectIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": result.Restored, "memory": result.Memory})
}

// search handles GET /api/v1/memories/search.
func (h *memoriesHandlers) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("q")) == "" {
		writeValidationError(w, "q_required", "q is required")
		return
	}
	if strings.TrimSpace(q.Get("subject_id")) == "" {
		writeValidationError(w, "subject_id_required", "subject_id is required")
		return
	}

	result, err := h.retrieval.Retrieve(r.Context(), retrieval.Request{
		ProjectID: projectIDFromContext(r.Context()),
		SubjectID: q.Get("subject_id"),
		Query:     q.Get("q"),
		Limit:     parseIntParam(q.Get("limit"), 0),
		MinScore:  parseFloatParam(q.Get("min_score"), 0),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type extractBody struct {
	SubjectID           string   `json:"subject_id"`
	Text                string   `json:"text"`
	Force               bool     `json:"force"`
	Learn               bool     `json:"learn"`
	ConversationContext []string `json:"conversation_context"`
}

// extract handles POST /api/v1/memories/extract.
func (h *memoriesHandlers) extract(w http.ResponseWriter, r *http.Request) {
	var body extractBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidationError(w, "invalid_json_body", err.Error())
		return
	}
	if strings.TrimSpace(body.SubjectID) == "" {
		writeValidationError(w, "subject_id_required", "subject_id is required")
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeValidationError(w, "text_required", "text is required")
		return
	}

	result := h.extraction.Extract(r.Context(), extraction.Request{
		SubjectID:           body.SubjectID,
		Text:                body.Text,
		Force:               body.Force,
		ConversationContext: body.ConversationContext,
	})

	if !body.Learn {
		writeJSON(w, http.StatusOK, result)
		return
	}

	var created []string
	for _, draft := range result.Memories {
		res, err := h.memories.Create(r.Context(), projectIDFromContext(r.Context()), memoryorch.CreateInput{
			SubjectID:     body.SubjectID,
			Text:          draft.Text,
			Kind:          draft.Kind,
			Visibility:    draft.Visibility,
			Importance:    draft.Importance,
			Confidence:    draft.Confidence,
			IsTemporal:    draft.IsTemporal,
			Tags:          draft.Tags,
			SourceType:    "extraction",
			ExtractClaims: false,
		})
		if err != nil {
			continue
		}
		if res.Created {
			created = append(created, res.ID)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": result, "created_memory_ids": created})
}

// recalls handles GET /api/v1/memories/recalls.
func (h *memoriesHandlers) recalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	projectID := projectIDFromContext(r.Context())

	if parseBoolParam(q.Get("stats")) {
		stats, err := h.store.RecallStats(r.Context(), projectID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	limit := parseIntParam(q.Get("limit"), 25)
	if limit > 1000 {
		limit = 1000
	}

	if chatID := q.Get("chat_id"); chatID != "" {
		events, err := h.store.ListRecallsByChat(r.Context(), projectID, chatID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
		return
	}

	if memoryID := q.Get("memory_id"); memoryID != "" {
		events, err := h.store.ListRecallsByMemory(r.Context(), projectID, memoryID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
		return
	}

	writeValidationError(w, "missing_parameter", "chat_id or memory_id is required")
}

// claims handles GET /api/v1/memories/:id/claims: the claims sourced from
// this memory that currently win an active slot for its subject. Superseded
// or retracted claims from this memory are not listed, and assertions are
// not included.
func (h *memoriesHandlers) claims(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	projectID := projectIDFromContext(r.Context())

	memory, err := h.store.GetMemory(r.Context(), projectID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	slots, err := h.store.GetCurrentTruth(r.Context(), projectID, memory.SubjectID, false)
	if err != nil {
		writeError(w, err)
		return
	}

	var claims []model.Claim
	for _, slot := range slots {
		if slot.ActiveClaim != nil && slot.ActiveClaim.SourceMemoryID == id {
			claims = append(claims, *slot.ActiveClaim)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"memory_id": id, "claims": claims})
}
