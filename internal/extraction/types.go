// Package extraction derives memories and claims from raw conversational
// text, with an LLM variant that falls through to a deterministic
// heuristic variant on any failure.
package extraction

import "github.com/mnexium/memory-substrate/pkg/model"

// ClaimDraft is a claim as extracted, before ids/timestamps are assigned.
type ClaimDraft struct {
	Predicate   string          `json:"predicate"`
	ObjectValue string          `json:"object_value"`
	ClaimType   model.ClaimType `json:"claim_type"`
	Confidence  float64         `json:"confidence"`
}

// MemoryDraft is a memory as extracted, before ids/timestamps are assigned.
type MemoryDraft struct {
	Text       string           `json:"text"`
	Kind       model.MemoryKind `json:"kind"`
	Importance int              `json:"importance"`
	Confidence float64          `json:"confidence"`
	IsTemporal bool             `json:"is_temporal"`
	Visibility model.Visibility `json:"visibility"`
	Tags       []string         `json:"tags"`
	Claims     []ClaimDraft     `json:"claims"`
}

// Result is the normalized output shape both variants share.
type Result struct {
	Memories []MemoryDraft `json:"memories"`
}

// Request carries the extraction input, shared across variants.
type Request struct {
	SubjectID          string
	Text               string
	Force              bool
	ConversationContext []string
}
