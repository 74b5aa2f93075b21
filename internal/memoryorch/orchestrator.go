// Package memoryorch implements the memory orchestrator: the end-to-end
// create/patch/delete/restore flow behind POST/PATCH/DELETE /memories
// (spec §4.E).
package memoryorch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mnexium/memory-substrate/internal/bus"
	"github.com/mnexium/memory-substrate/internal/claimorch"
	"github.com/mnexium/memory-substrate/internal/extraction"
	"github.com/mnexium/memory-substrate/internal/llm"
	"github.com/mnexium/memory-substrate/internal/storage"
	"github.com/mnexium/memory-substrate/pkg/ids"
	"github.com/mnexium/memory-substrate/pkg/model"
)

const maxMemoryTextLength = 10000

const (
	duplicateThreshold = 85.0
	conflictMinSim     = 60.0
	conflictMaxSim     = 85.0
	maxConflictRows    = 50
	maxExtractedClaims = 20
)

// CreateInput is the POST /memories request body.
type CreateInput struct {
	ID            string
	SubjectID     string
	Text          string
	Kind          model.MemoryKind
	Visibility    model.Visibility
	Importance    int
	Confidence    float64
	IsTemporal    bool
	Tags          []string
	Metadata      map[string]any
	SourceType    string
	ExtractClaims bool
	NoSupersede   bool
}

// CreateResult is the POST /memories response body.
type CreateResult struct {
	ID              string
	SubjectID       string
	Text            string
	Kind            model.MemoryKind
	Created         bool
	Skipped         bool
	Reason          string
	SupersededCount int
	SupersededIDs   []string
}

// Orchestrator wires storage, the embedder, the event bus, and the claim
// orchestrator together to implement spec §4.E.
type Orchestrator struct {
	store      storage.Facade
	capability llm.Capability
	bus        *bus.Bus
	extraction *extraction.Service
	claims     *claimorch.Orchestrator
}

func New(store storage.Facade, capability llm.Capability, eventBus *bus.Bus, extractor *extraction.Service, claims *claimorch.Orchestrator) *Orchestrator {
	return &Orchestrator{store: store, capability: capability, bus: eventBus, extraction: extractor, claims: claims}
}

// Create runs the ten-step POST-memory flow of spec §4.E.
func (o *Orchestrator) Create(ctx context.Context, projectID string, in CreateInput) (CreateResult, error) {
	if strings.TrimSpace(in.SubjectID) == "" {
		return CreateResult{}, storage.InvalidInputf("subject_id_required", "subject_id is required")
	}
	if strings.TrimSpace(in.Text) == "" {
		return CreateResult{}, storage.InvalidInputf("text_required", "text is required")
	}
	if len(in.Text) > maxMemoryTextLength {
		return CreateResult{}, storage.InvalidInputf("text_too_long", fmt.Sprintf("text exceeds %d characters", maxMemoryTextLength))
	}

	embedding, embedErr := o.capability.Embed(ctx, in.Text)
	if embedErr != nil {
		embedding = nil
	}
	hasEmbedding := len(embedding) > 0

	if hasEmbedding && !in.NoSupersede {
		dup, err := o.store.FindDuplicateMemory(ctx, projectID, in.SubjectID, embedding, duplicateThreshold)
		if err != nil {
			return CreateResult{}, err
		}
		if dup != nil {
			return CreateResult{Skipped: true, Reason: "duplicate"}, nil
		}
	}

	var conflictingIDs []string
	if hasEmbedding && !in.NoSupersede {
		conflicts, err := o.store.FindConflictingMemories(ctx, projectID, in.SubjectID, embedding, conflictMinSim, conflictMaxSim, maxConflictRows)
		if err != nil {
			return CreateResult{}, err
		}
		for _, m := range conflicts {
			conflictingIDs = append(conflictingIDs, m.ID)
		}
	}

	memory := &model.Memory{
		ID:         in.ID,
		ProjectID:  projectID,
		SubjectID:  in.SubjectID,
		Text:       in.Text,
		Kind:       in.Kind,
		Visibility: in.Visibility,
		Importance: in.Importance,
		Confidence: in.Confidence,
		IsTemporal: in.IsTemporal,
		Tags:       in.Tags,
		Metadata:   in.Metadata,
		Embedding:  embedding,
		SourceType: in.SourceType,
	}
	if memory.ID == "" {
		memory.ID = ids.New(ids.PrefixMemory)
	}

	created, err := o.store.CreateMemory(ctx, memory)
	if err != nil {
		return CreateResult{}, err
	}

	var supersededCount int
	var supersededIDs []string
	if len(conflictingIDs) > 0 {
		supersededCount, err = o.store.SupersedeMemories(ctx, projectID, conflictingIDs, created.ID)
		if err != nil {
			return CreateResult{}, err
		}
		supersededIDs = conflictingIDs
	}

	o.bus.Emit(projectID, in.SubjectID, "memory.created", map[string]any{
		"id":         created.ID,
		"subject_id": created.SubjectID,
		"text":       created.Text,
		"kind":       created.Kind,
		"visibility": created.Visibility,
		"importance": created.Importance,
		"tags":       created.Tags,
		"created_at": created.CreatedAt,
	})
	for _, supersededID := range supersededIDs {
		o.bus.Emit(projectID, in.SubjectID, "memory.superseded", map[string]any{
			"id":            supersededID,
			"superseded_by": created.ID,
		})
	}

	// ExtractClaims defaults to true at the HTTP layer; callers that
	// construct CreateInput directly must set it explicitly.
	if in.ExtractClaims && !in.NoSupersede {
		go o.extractClaimsAsync(context.WithoutCancel(ctx), projectID, created)
	}

	return CreateResult{
		ID:              created.ID,
		SubjectID:       created.SubjectID,
		Text:            created.Text,
		Kind:            created.Kind,
		Created:         true,
		SupersededCount: supersededCount,
		SupersededIDs:   supersededIDs,
	}, nil
}

// extractClaimsAsync runs step 9 of spec §4.E detached from the HTTP
// response. Failures are logged, never surfaced.
func (o *Orchestrator) extractClaimsAsync(ctx context.Context, projectID string, memory *model.Memory) {
	result := o.extraction.Extract(ctx, extraction.Request{SubjectID: memory.SubjectID, Text: memory.Text, Force: true})

	type claimKey struct{ predicate, object string }
	seen := make(map[claimKey]bool)
	count := 0

	for _, draft := range result.Memories {
		for _, cd := range draft.Claims {
			key := claimKey{cd.Predicate, strings.ToLower(cd.ObjectValue)}
			if seen[key] {
				continue
			}
			seen[key] = true
			count++
			if count > maxExtractedClaims {
				return
			}

			embedding, err := o.capability.Embed(ctx, fmt.Sprintf("%s: %s", cd.Predicate, cd.ObjectValue))
			if err != nil {
				embedding = nil
			}

			claim := &model.Claim{
				ProjectID:      projectID,
				SubjectID:      memory.SubjectID,
				Predicate:      cd.Predicate,
				ObjectValue:    cd.ObjectValue,
				ClaimType:      cd.ClaimType,
				Confidence:     cd.Confidence,
				SourceMemoryID: memory.ID,
				Embedding:      embedding,
			}
			if _, err := o.claims.CreateDirect(ctx, claim); err != nil {
				log.Printf("memoryorch: async claim extraction failed for memory %s: %v", memory.ID, err)
			}
		}
	}
}

// PatchInput is the PATCH /memories/:id request body; nil fields are left
// unchanged.
type PatchInput struct {
	Text       *string
	Kind       *model.MemoryKind
	Visibility *model.Visibility
	Importance *int
	Confidence *float64
	IsTemporal *bool
	Tags       []string
	Metadata   map[string]any
}

func (o *Orchestrator) Patch(ctx context.Context, projectID, id string, in PatchInput) (*model.Memory, error) {
	existing, err := o.store.GetMemory(ctx, projectID, id)
	if err != nil {
		return nil, storage.WrapNotFound(err, "memory_not_found")
	}
	if existing.IsDeleted {
		return nil, storage.NotFoundf("memory_deleted", "memory is deleted")
	}

	textChanged := in.Text != nil && *in.Text != existing.Text

	if in.Text != nil {
		existing.Text = *in.Text
	}
	if in.Kind != nil {
		existing.Kind = *in.Kind
	}
	if in.Visibility != nil {
		existing.Visibility = *in.Visibility
	}
	if in.Importance != nil {
		existing.Importance = *in.Importance
	}
	if in.Confidence != nil {
		existing.Confidence = *in.Confidence
	}
	if in.IsTemporal != nil {
		existing.IsTemporal = *in.IsTemporal
	}
	if in.Tags != nil {
		existing.Tags = in.Tags
	}
	if in.Metadata != nil {
		existing.Metadata = in.Metadata
	}

	if textChanged && o.capability.Available() {
		if embedding, err := o.capability.Embed(ctx, existing.Text); err == nil {
			existing.Embedding = embedding
		}
	}

	if err := o.store.UpdateMemory(ctx, existing); err != nil {
		return nil, err
	}

	o.bus.Emit(projectID, existing.SubjectID, "memory.updated", map[string]any{
		"id":     existing.ID,
		"status": existing.Status,
	})
	return existing, nil
}

func (o *Orchestrator) Delete(ctx context.Context, projectID, id string) (bool, error) {
	memory, err := o.store.GetMemory(ctx, projectID, id)
	if err != nil {
		return false, storage.WrapNotFound(err, "memory_not_found")
	}

	deleted, err := o.store.DeleteMemory(ctx, projectID, id)
	if err != nil {
		return false, err
	}
	if deleted {
		o.bus.Emit(projectID, memory.SubjectID, "memory.deleted", map[string]any{"id": id})
	}
	return deleted, nil
}

// RestoreResult is the RESTORE /memories/:id response body.
type RestoreResult struct {
	Restored bool
	Memory   *model.Memory
}

func (o *Orchestrator) Restore(ctx context.Context, projectID, id string) (RestoreResult, error) {
	existing, err := o.store.GetMemory(ctx, projectID, id)
	if err != nil {
		return RestoreResult{}, storage.WrapNotFound(err, "memory_not_found")
	}
	if existing.IsDeleted {
		// Unlike Patch, restore reports this as 400 per spec's taxonomy note.
		return RestoreResult{}, storage.InvalidInputf("memory_deleted", "memory is deleted")
	}
	if existing.Status == model.MemoryStatusActive {
		return RestoreResult{Restored: false, Memory: existing}, nil
	}

	restored, err := o.store.RestoreMemory(ctx, projectID, id)
	if err != nil {
		return RestoreResult{}, err
	}

	o.bus.Emit(projectID, restored.SubjectID, "memory.updated", map[string]any{
		"id":     restored.ID,
		"status": restored.Status,
	})
	return RestoreResult{Restored: true, Memory: restored}, nil
}
