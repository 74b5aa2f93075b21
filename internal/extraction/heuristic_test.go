package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnexium/memory-substrate/pkg/model"
)

func TestHeuristicSkipsTrivialGreeting(t *testing.T) {
	result := Heuristic{}.Extract(Request{Text: "thanks"})
	assert.Empty(t, result.Memories)
}

func TestHeuristicForcesTrivialGreetingWhenForced(t *testing.T) {
	result := Heuristic{}.Extract(Request{Text: "thanks", Force: true})
	require.Len(t, result.Memories, 1)
}

func TestHeuristicDerivesNameClaim(t *testing.T) {
	result := Heuristic{}.Extract(Request{Text: "My name is Alice and I live in Paris."})
	require.Len(t, result.Memories, 1)
	mem := result.Memories[0]
	assert.Equal(t, model.KindFact, mem.Kind)

	var predicates []string
	for _, c := range mem.Claims {
		predicates = append(predicates, c.Predicate)
	}
	assert.Contains(t, predicates, "name")
	assert.Contains(t, predicates, "lives_in")
}

func TestHeuristicDerivesFavoritePreference(t *testing.T) {
	result := Heuristic{}.Extract(Request{Text: "My favorite Color is blue"})
	require.Len(t, result.Memories, 1)
	require.Len(t, result.Memories[0].Claims, 1)
	claim := result.Memories[0].Claims[0]
	assert.Equal(t, "favorite_color", claim.Predicate)
	assert.Equal(t, "blue", claim.ObjectValue)
	assert.Equal(t, model.ClaimTypePreference, claim.ClaimType)
}

func TestHeuristicDedupesClaimsByPredicateAndObject(t *testing.T) {
	result := Heuristic{}.Extract(Request{Text: "I like hiking. I like hiking."})
	require.Len(t, result.Memories, 1)
	assert.Len(t, result.Memories[0].Claims, 1)
}

func TestHeuristicNoteKindWhenNoClaims(t *testing.T) {
	result := Heuristic{}.Extract(Request{Text: "It rained a lot this week across the whole region."})
	require.Len(t, result.Memories, 1)
	assert.Equal(t, model.KindNote, result.Memories[0].Kind)
}

func TestHeuristicTruncatesLongText(t *testing.T) {
	long := make([]byte, maxMemoryTextLength+500)
	for i := range long {
		long[i] = 'a'
	}
	result := Heuristic{}.Extract(Request{Text: string(long), Force: true})
	require.Len(t, result.Memories, 1)
	assert.Len(t, result.Memories[0].Text, maxMemoryTextLength)
}
