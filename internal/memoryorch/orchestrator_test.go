package memoryorch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnexium/memory-substrate/internal/bus"
	"github.com/mnexium/memory-substrate/internal/claimorch"
	"github.com/mnexium/memory-substrate/internal/extraction"
	"github.com/mnexium/memory-substrate/internal/llm"
	"github.com/mnexium/memory-substrate/internal/storage"
	"github.com/mnexium/memory-substrate/internal/storage/storagefake"
)

func newTestOrchestrator() *Orchestrator {
	return newTestOrchestratorWithCapability(llm.None())
}

func newTestOrchestratorWithCapability(capability llm.Capability) *Orchestrator {
	store := storagefake.New()
	eventBus := bus.New()
	extractor := extraction.New(llm.None())
	claims := claimorch.New(store, llm.None())
	return New(store, capability, eventBus, extractor, claims)
}

// fakeEmbedder returns a canned vector per exact input text, letting tests
// engineer specific cosine-similarity values between two Create calls.
type fakeEmbedder struct {
	vectors map[string][]float64
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("fakeEmbedder: no vector stubbed for %q", text)
	}
	return v, nil
}

func TestCreateRejectsMissingSubject(t *testing.T) {
	o := newTestOrchestrator()
	_, err := o.Create(context.Background(), "proj_1", CreateInput{Text: "hello"})
	require.Error(t, err)
}

func TestCreateEmitsMemoryCreatedEvent(t *testing.T) {
	o := newTestOrchestrator()

	var mu sync.Mutex
	var received []string
	unsub := o.bus.Subscribe("proj_1", "subj_1", func(evt bus.Event) {
		mu.Lock()
		received = append(received, evt.Type)
		mu.Unlock()
	})
	defer unsub()

	result, err := o.Create(context.Background(), "proj_1", CreateInput{
		SubjectID: "subj_1",
		Text:      "My favorite color is yellow",
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.NotEmpty(t, result.ID)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, received, "memory.created")
}

func TestPatchRecomputesOnlyProvidedFields(t *testing.T) {
	o := newTestOrchestrator()
	created, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "original text"})
	require.NoError(t, err)

	newText := "updated text"
	updated, err := o.Patch(context.Background(), "proj_1", created.ID, PatchInput{Text: &newText})
	require.NoError(t, err)
	assert.Equal(t, newText, updated.Text)
}

func TestDeleteThenRestoreReportsMemoryDeleted(t *testing.T) {
	o := newTestOrchestrator()
	created, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "ephemeral note"})
	require.NoError(t, err)

	deleted, err := o.Delete(context.Background(), "proj_1", created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	// deleting again should not re-transition
	deletedAgain, err := o.Delete(context.Background(), "proj_1", created.ID)
	require.NoError(t, err)
	assert.False(t, deletedAgain)

	// Restore undoes supersession, not soft-delete: a deleted memory reports
	// 400 memory_deleted rather than being un-deleted.
	_, err = o.Restore(context.Background(), "proj_1", created.ID)
	require.Error(t, err)
	var coded *storage.CodedError
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, "memory_deleted", coded.Code)
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))
}

func TestRestoreAlreadyActiveReportsNotRestored(t *testing.T) {
	o := newTestOrchestrator()
	created, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "never superseded"})
	require.NoError(t, err)

	result, err := o.Restore(context.Background(), "proj_1", created.ID)
	require.NoError(t, err)
	assert.False(t, result.Restored)
}

func TestRestoreUnknownMemoryReportsMemoryNotFound(t *testing.T) {
	o := newTestOrchestrator()
	_, err := o.Restore(context.Background(), "proj_1", "mem_missing")
	require.Error(t, err)
	var coded *storage.CodedError
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, "memory_not_found", coded.Code)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestCreateOversizedTextReportsTextTooLong(t *testing.T) {
	o := newTestOrchestrator()
	_, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: strings.Repeat("a", maxMemoryTextLength+1)})
	require.Error(t, err)
	var coded *storage.CodedError
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, "text_too_long", coded.Code)
}

// vectorWithSimilarity returns a 2D unit vector whose cosine similarity
// against the base vector {1,0} is exactly sim.
func vectorWithSimilarity(sim float64) []float64 {
	return []float64{sim, math.Sqrt(1 - sim*sim)}
}

func TestCreateSkipsAsDuplicateAboveThreshold(t *testing.T) {
	capability := llm.NewPrimary("fake", fakeEmbedder{vectors: map[string][]float64{
		"original text":        {1, 0},
		"near-duplicate text": vectorWithSimilarity(0.90), // 90 >= duplicateThreshold (85)
	}}, nil)
	o := newTestOrchestratorWithCapability(capability)

	_, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "original text"})
	require.NoError(t, err)

	result, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "near-duplicate text"})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "duplicate", result.Reason)
}

func TestCreateAtExactDuplicateThresholdIsSkipped(t *testing.T) {
	capability := llm.NewPrimary("fake", fakeEmbedder{vectors: map[string][]float64{
		"original text":   {1, 0},
		"boundary text":   vectorWithSimilarity(0.85), // == duplicateThreshold, not just inside it
	}}, nil)
	o := newTestOrchestratorWithCapability(capability)

	_, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "original text"})
	require.NoError(t, err)

	result, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "boundary text"})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestCreateSupersedesConflictingMemoryInBand(t *testing.T) {
	capability := llm.NewPrimary("fake", fakeEmbedder{vectors: map[string][]float64{
		"original text":   {1, 0},
		"conflicting text": vectorWithSimilarity(0.70), // 70, inside [60,85)
	}}, nil)
	o := newTestOrchestratorWithCapability(capability)

	original, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "original text"})
	require.NoError(t, err)

	result, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "conflicting text"})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, 1, result.SupersededCount)
	assert.Equal(t, []string{original.ID}, result.SupersededIDs)
}

func TestCreateAtConflictLowerBoundIsSuperseded(t *testing.T) {
	capability := llm.NewPrimary("fake", fakeEmbedder{vectors: map[string][]float64{
		"original text": {1, 0},
		"lower bound":   vectorWithSimilarity(0.60), // == conflictMinSim, inclusive
	}}, nil)
	o := newTestOrchestratorWithCapability(capability)

	original, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "original text"})
	require.NoError(t, err)

	result, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "lower bound"})
	require.NoError(t, err)
	assert.Equal(t, []string{original.ID}, result.SupersededIDs)
}

func TestCreateBelowConflictBandDoesNotSupersede(t *testing.T) {
	capability := llm.NewPrimary("fake", fakeEmbedder{vectors: map[string][]float64{
		"original text": {1, 0},
		"unrelated text": vectorWithSimilarity(0.10),
	}}, nil)
	o := newTestOrchestratorWithCapability(capability)

	_, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "original text"})
	require.NoError(t, err)

	result, err := o.Create(context.Background(), "proj_1", CreateInput{SubjectID: "subj_1", Text: "unrelated text"})
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 0, result.SupersededCount)
}

func TestAsyncClaimExtractionCreatesClaimsFromHeuristic(t *testing.T) {
	o := newTestOrchestrator()

	var mu sync.Mutex
	var superseded []string
	unsub := o.bus.Subscribe("proj_1", "", func(evt bus.Event) {
		mu.Lock()
		superseded = append(superseded, evt.Type)
		mu.Unlock()
	})
	defer unsub()

	_, err := o.Create(context.Background(), "proj_1", CreateInput{
		SubjectID:     "subj_1",
		Text:          "My name is Alice",
		ExtractClaims: true,
	})
	require.NoError(t, err)

	// extraction runs detached; give it a moment to complete.
	time.Sleep(50 * time.Millisecond)

	slots, err := o.store.GetCurrentTruth(context.Background(), "proj_1", "subj_1", false)
	require.NoError(t, err)
	assert.NotEmpty(t, slots)
}
