package storage

import (
	"context"
	"time"

	"github.com/mnexium/memory-substrate/pkg/model"
)

// MemoryFacade is the typed capability interface for memory rows (spec §4.A).
// Each operation takes explicit project/subject keys and returns typed rows;
// implementations own query/index details.
type MemoryFacade interface {
	ListMemories(ctx context.Context, opts ListOptions) (*PaginatedResult[model.Memory], error)
	ListSupersededMemories(ctx context.Context, opts ListOptions) (*PaginatedResult[model.Memory], error)
	SearchMemories(ctx context.Context, opts SearchOptions) ([]ScoredMemory, error)

	CreateMemory(ctx context.Context, memory *model.Memory) (*model.Memory, error)
	GetMemory(ctx context.Context, projectID, id string) (*model.Memory, error)
	UpdateMemory(ctx context.Context, memory *model.Memory) error
	DeleteMemory(ctx context.Context, projectID, id string) (deleted bool, err error)
	RestoreMemory(ctx context.Context, projectID, id string) (*model.Memory, error)

	// FindDuplicateMemory returns the single most-similar active, non-deleted
	// memory whose cosine-similarity x100 against embedding is >= threshold,
	// or nil if none qualifies.
	FindDuplicateMemory(ctx context.Context, projectID, subjectID string, embedding []float64, threshold float64) (*model.Memory, error)

	// FindConflictingMemories returns up to limit active, non-deleted
	// memories in the half-open similarity band [minSim, maxSim).
	FindConflictingMemories(ctx context.Context, projectID, subjectID string, embedding []float64, minSim, maxSim float64, limit int) ([]model.Memory, error)

	// SupersedeMemories bulk-transitions active rows to status=superseded.
	// Returns the count actually transitioned.
	SupersedeMemories(ctx context.Context, projectID string, ids []string, supersededBy string) (int, error)
}

// ClaimFacade is the typed capability interface for claims and the slot
// truth state (spec §4.A, §4.F).
type ClaimFacade interface {
	// CreateClaim performs the atomic insert-claim + insert-assertion +
	// upsert-slot-state transaction described in spec §4.F "Create".
	CreateClaim(ctx context.Context, claim *model.Claim) (*model.Claim, error)

	// RetractClaim performs the atomic retract transaction described in
	// spec §4.F "Retract". previousClaimID is empty when no prior winner
	// exists.
	RetractClaim(ctx context.Context, projectID, claimID, reason string) (RetractResult, error)

	GetClaim(ctx context.Context, projectID, claimID string) (*model.Claim, error)
	GetClaimAssertions(ctx context.Context, projectID, claimID string) ([]model.ClaimAssertion, error)
	GetClaimEdges(ctx context.Context, projectID, claimID string, edgeType model.EdgeType) ([]model.ClaimEdge, error)

	GetCurrentTruth(ctx context.Context, projectID, subjectID string, includeSource bool) ([]SlotView, error)
	GetCurrentSlot(ctx context.Context, projectID, subjectID, slot string) (*SlotView, error)
	GetSlots(ctx context.Context, projectID, subjectID string, limit int) ([]SlotView, error)
	GetClaimGraph(ctx context.Context, projectID, subjectID string, limit int) (ClaimGraph, error)
	GetClaimHistory(ctx context.Context, projectID, subjectID, slot string, limit int) ([]ClaimHistoryEntry, error)
}

// RecallFacade is the typed capability interface for memory recall audit
// rows (spec §4.A).
type RecallFacade interface {
	RecordRecall(ctx context.Context, event *model.MemoryRecallEvent) error
	ListRecallsByChat(ctx context.Context, projectID, chatID string) ([]model.MemoryRecallEvent, error)
	ListRecallsByMemory(ctx context.Context, projectID, memoryID string, limit int) ([]model.MemoryRecallEvent, error)
	RecallStats(ctx context.Context, projectID string) (RecallStats, error)
}

// Facade composes the full storage contract of spec §4.A.
type Facade interface {
	MemoryFacade
	ClaimFacade
	RecallFacade
	Close() error
}

// RetractResult is the response shape spec §4.F "Retract" requires.
type RetractResult struct {
	Success          bool   `json:"success"`
	ClaimID          string `json:"claim_id"`
	Slot             string `json:"slot"`
	PreviousClaimID  string `json:"previous_claim_id"`
	RestoredPrevious bool   `json:"restored_previous"`
}

// SlotView is the read-only join of SlotState to its active Claim, optionally
// including the backing memory when includeSource is requested.
type SlotView struct {
	Slot              string           `json:"slot"`
	Status            model.SlotStatus `json:"status"`
	ActiveClaim       *model.Claim     `json:"active_claim"`
	ReplacedByClaimID string           `json:"replaced_by_claim_id,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
	SourceMemory      *model.Memory    `json:"source_memory,omitempty"`
}

// ClaimGraph is the claims+edges+edge-type-histogram view behind
// GET /claims/subject/:id/graph.
type ClaimGraph struct {
	Claims    []model.Claim        `json:"claims"`
	Edges     []model.ClaimEdge    `json:"edges"`
	Histogram map[model.EdgeType]int `json:"histogram"`
}

// ClaimHistoryEntry groups a slot's claims with the supersedes edges between
// them, behind GET /claims/subject/:id/history.
type ClaimHistoryEntry struct {
	Slot            string            `json:"slot"`
	Claims          []model.Claim     `json:"claims"`
	SupersedesEdges []model.ClaimEdge `json:"supersedes_edges"`
}

// RecallStats is the aggregate view behind GET /memories/recalls?stats=true.
type RecallStats struct {
	Count            int        `json:"count"`
	DistinctChats    int        `json:"distinct_chats"`
	DistinctSubjects int        `json:"distinct_subjects"`
	AvgScore         float64    `json:"avg_score"`
	MinTimestamp     *time.Time `json:"min_timestamp,omitempty"`
	MaxTimestamp     *time.Time `json:"max_timestamp,omitempty"`
}
