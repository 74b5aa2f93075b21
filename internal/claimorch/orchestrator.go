// Package claimorch implements the claim orchestrator: the thin
// request/response layer in front of the atomic claim-write transactions
// that live in the storage facade (spec §4.F).
//
// Both Create and Retract are single storage calls under the hood — the
// three-statement atomicity the spec requires is a storage-layer
// transaction, not something this package re-implements. What this package
// owns is translating HTTP-shaped input into a model.Claim (including the
// best-effort embedding step), and handing back the exact response shapes
// spec §4.F documents.
package claimorch

import (
	"context"
	"errors"
	"fmt"

	"github.com/mnexium/memory-substrate/internal/llm"
	"github.com/mnexium/memory-substrate/internal/storage"
	"github.com/mnexium/memory-substrate/pkg/model"
)

// Orchestrator exposes the claim write path to transport-layer handlers and
// to the memory orchestrator's async extraction step.
type Orchestrator struct {
	store      storage.ClaimFacade
	capability llm.Capability
}

func New(store storage.ClaimFacade, capability llm.Capability) *Orchestrator {
	return &Orchestrator{store: store, capability: capability}
}

// CreateInput is the POST /claims request body.
type CreateInput struct {
	ClaimID        string
	SubjectID      string
	Predicate      string
	ObjectValue    string
	Slot           string
	ClaimType      model.ClaimType
	Confidence     float64
	Importance     float64
	Tags           []string
	SourceMemoryID string
}

// Create embeds "predicate: object_value" best-effort, then delegates to the
// storage facade's atomic create-claim transaction.
func (o *Orchestrator) Create(ctx context.Context, projectID string, in CreateInput) (*model.Claim, error) {
	claim := &model.Claim{
		ClaimID:        in.ClaimID,
		ProjectID:      projectID,
		SubjectID:      in.SubjectID,
		Predicate:      in.Predicate,
		ObjectValue:    in.ObjectValue,
		Slot:           in.Slot,
		ClaimType:      in.ClaimType,
		Confidence:     in.Confidence,
		Importance:     in.Importance,
		Tags:           in.Tags,
		SourceMemoryID: in.SourceMemoryID,
	}

	if o.capability.Available() {
		if embedding, err := o.capability.Embed(ctx, fmt.Sprintf("%s: %s", claim.Predicate, claim.ObjectValue)); err == nil {
			claim.Embedding = embedding
		}
	}

	return o.store.CreateClaim(ctx, claim)
}

// CreateDirect is used by the memory orchestrator's async extraction step,
// which builds the model.Claim itself (embedding already computed).
// CreateDirect passes it straight to the storage facade without a second
// embed call.
func (o *Orchestrator) CreateDirect(ctx context.Context, claim *model.Claim) (*model.Claim, error) {
	return o.store.CreateClaim(ctx, claim)
}

// Retract delegates to the storage facade's atomic retract transaction,
// returning {success:false} rather than an error when the claim is missing
// (spec §4.F "Retract" step 1).
func (o *Orchestrator) Retract(ctx context.Context, projectID, claimID, reason string) (storage.RetractResult, error) {
	result, err := o.store.RetractClaim(ctx, projectID, claimID, reason)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.RetractResult{Success: false, ClaimID: claimID}, nil
		}
		return storage.RetractResult{}, err
	}
	return result, nil
}
