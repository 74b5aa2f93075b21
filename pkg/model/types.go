// Package model defines the wire/storage entities of the memory and claim
// substrate: Memory, Claim, ClaimAssertion, ClaimEdge, SlotState, and
// MemoryRecallEvent.
package model

import "time"

// MemoryKind enumerates the allowed values of Memory.Kind.
type MemoryKind string

const (
	KindFact       MemoryKind = "fact"
	KindPreference MemoryKind = "preference"
	KindContext    MemoryKind = "context"
	KindNote       MemoryKind = "note"
	KindEvent      MemoryKind = "event"
	KindTrait      MemoryKind = "trait"
)

// Visibility enumerates the allowed values of Memory.Visibility.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

// MemoryStatus enumerates the allowed values of Memory.Status.
type MemoryStatus string

const (
	MemoryStatusActive     MemoryStatus = "active"
	MemoryStatusSuperseded MemoryStatus = "superseded"
)

// Memory is a durable, subject-scoped textual record of user context or fact.
type Memory struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	SubjectID        string         `json:"subject_id"`
	Text             string         `json:"text"`
	Kind             MemoryKind     `json:"kind"`
	Visibility       Visibility     `json:"visibility"`
	Importance       int            `json:"importance"`
	Confidence       float64        `json:"confidence"`
	IsTemporal       bool           `json:"is_temporal"`
	Tags             []string       `json:"tags,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Embedding        []float64      `json:"embedding,omitempty"`
	Status           MemoryStatus   `json:"status"`
	SupersededBy     string         `json:"superseded_by,omitempty"`
	IsDeleted        bool           `json:"is_deleted"`
	SourceType       string         `json:"source_type"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	LastReinforcedAt time.Time      `json:"last_reinforced_at"`
}

// ClaimType enumerates the allowed values of Claim.ClaimType.
type ClaimType string

const (
	ClaimTypeFact       ClaimType = "fact"
	ClaimTypePreference ClaimType = "preference"
	ClaimTypeGoal       ClaimType = "goal"
	ClaimTypeEvent      ClaimType = "event"
)

// ClaimStatus enumerates the allowed values of Claim.Status.
type ClaimStatus string

const (
	ClaimStatusActive    ClaimStatus = "active"
	ClaimStatusRetracted ClaimStatus = "retracted"
)

// Claim is a structured (predicate, object_value) assertion derived from or
// attached to a memory.
type Claim struct {
	ClaimID        string      `json:"claim_id"`
	ProjectID      string      `json:"project_id"`
	SubjectID      string      `json:"subject_id"`
	Predicate      string      `json:"predicate"`
	ObjectValue    string      `json:"object_value"`
	Slot           string      `json:"slot"`
	ClaimType      ClaimType   `json:"claim_type"`
	Confidence     float64     `json:"confidence"`
	Importance     float64     `json:"importance"`
	Tags           []string    `json:"tags,omitempty"`
	SourceMemoryID string      `json:"source_memory_id,omitempty"`
	SubjectEntity  string      `json:"subject_entity"`
	Status         ClaimStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	ValidFrom      *time.Time  `json:"valid_from,omitempty"`
	ValidUntil     *time.Time  `json:"valid_until,omitempty"`
	Embedding      []float64   `json:"embedding,omitempty"`
	RetractedAt    *time.Time  `json:"retracted_at,omitempty"`
	RetractReason  string      `json:"retract_reason,omitempty"`
}

// AssertionValueType enumerates the typed discriminator carried by a
// ClaimAssertion.
type AssertionValueType string

const (
	ValueTypeString AssertionValueType = "string"
	ValueTypeNumber AssertionValueType = "number"
	ValueTypeDate   AssertionValueType = "date"
	ValueTypeJSON   AssertionValueType = "json"
)

// AssertionStatus enumerates the allowed values of ClaimAssertion.Status.
type AssertionStatus string

const (
	AssertionStatusActive    AssertionStatus = "active"
	AssertionStatusRetracted AssertionStatus = "retracted"
)

// ClaimAssertion records one evidence occurrence for a claim.
type ClaimAssertion struct {
	AssertionID  string             `json:"assertion_id"`
	ClaimID      string             `json:"claim_id"`
	MemoryID     string             `json:"memory_id,omitempty"`
	ObjectType   AssertionValueType `json:"object_type"`
	ValueString  string             `json:"value_string,omitempty"`
	ValueNumber  *float64           `json:"value_number,omitempty"`
	ValueDate    *time.Time         `json:"value_date,omitempty"`
	ValueJSON    map[string]any     `json:"value_json,omitempty"`
	Confidence   float64            `json:"confidence"`
	Status       AssertionStatus    `json:"status"`
	FirstSeenAt  time.Time          `json:"first_seen_at"`
	LastSeenAt   time.Time          `json:"last_seen_at"`
}

// EdgeType enumerates the allowed values of ClaimEdge.EdgeType.
type EdgeType string

const (
	EdgeSupersedes EdgeType = "supersedes"
	EdgeSupports   EdgeType = "supports"
	EdgeDuplicates EdgeType = "duplicates"
	EdgeRelated    EdgeType = "related"
	EdgeRetracts   EdgeType = "retracts"
)

// ClaimEdge is a typed directed relation between two claims.
type ClaimEdge struct {
	EdgeID     string    `json:"edge_id"`
	ProjectID  string    `json:"project_id"`
	FromClaim  string    `json:"from_claim_id"`
	ToClaim    string    `json:"to_claim_id"`
	EdgeType   EdgeType  `json:"edge_type"`
	Weight     float64   `json:"weight"`
	ReasonCode string    `json:"reason_code,omitempty"`
	ReasonText string    `json:"reason_text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SlotStatus enumerates the allowed values of SlotState.Status.
type SlotStatus string

const (
	SlotStatusActive     SlotStatus = "active"
	SlotStatusSuperseded SlotStatus = "superseded"
	SlotStatusRetracted  SlotStatus = "retracted"
)

// SlotState is the per (project, subject, slot) record of the current
// winning claim.
type SlotState struct {
	ProjectID         string     `json:"project_id"`
	SubjectID         string     `json:"subject_id"`
	Slot              string     `json:"slot"`
	ActiveClaimID     string     `json:"active_claim_id,omitempty"`
	Status            SlotStatus `json:"status"`
	ReplacedByClaimID string     `json:"replaced_by_claim_id,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// MemoryRecallEvent is an audit row for a single use of a memory in a recall.
type MemoryRecallEvent struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	SubjectID   string    `json:"subject_id"`
	ChatID      string    `json:"chat_id,omitempty"`
	MemoryID    string    `json:"memory_id"`
	MessageIdx  int       `json:"message_index"`
	Similarity  float64   `json:"similarity_score"`
	RequestType string    `json:"request_type"`
	ModelID     string    `json:"model_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
