package claimorch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnexium/memory-substrate/internal/llm"
	"github.com/mnexium/memory-substrate/internal/storage/storagefake"
	"github.com/mnexium/memory-substrate/pkg/model"
)

func TestCreateInfersSlotFromPredicateWhenUnset(t *testing.T) {
	store := storagefake.New()
	o := New(store, llm.None())

	claim, err := o.Create(context.Background(), "proj_1", CreateInput{
		SubjectID:   "subj_1",
		Predicate:   "favorite_color",
		ObjectValue: "yellow",
	})
	require.NoError(t, err)
	assert.Equal(t, "favorite_color", claim.Slot)
	assert.Equal(t, model.ClaimStatusActive, claim.Status)
}

func TestRetractPromotesPreviousWinnerOnSameSlot(t *testing.T) {
	store := storagefake.New()
	o := New(store, llm.None())
	ctx := context.Background()

	first, err := o.Create(ctx, "proj_1", CreateInput{SubjectID: "subj_1", Predicate: "favorite_color", ObjectValue: "yellow"})
	require.NoError(t, err)
	second, err := o.Create(ctx, "proj_1", CreateInput{SubjectID: "subj_1", Predicate: "favorite_color", ObjectValue: "red"})
	require.NoError(t, err)

	result, err := o.Retract(ctx, "proj_1", second.ClaimID, "user correction")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.RestoredPrevious)
	assert.Equal(t, first.ClaimID, result.PreviousClaimID)
}

func TestRetractMissingClaimReturnsUnsuccessful(t *testing.T) {
	store := storagefake.New()
	o := New(store, llm.None())

	result, err := o.Retract(context.Background(), "proj_1", "clm_does_not_exist", "reason")
	require.NoError(t, err)
	assert.False(t, result.Success)
}
