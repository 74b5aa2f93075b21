package postgres

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeDropsStopWordsAndShortTokens(t *testing.T) {
	tokens := tokenize("What is your favorite personal preference for coffee?")
	assert.Equal(t, []string{"favorite", "coffee"}, tokens)
}

func TestTokenizeDedupesAndCapsAtTen(t *testing.T) {
	tokens := tokenize("alpha alpha beta gamma delta epsilon zeta eta theta iota kappa lambda")
	assert.Len(t, tokens, 10)
	assert.Equal(t, "alpha", tokens[0])
}

func TestLexicalBonusWholeQuerySubstring(t *testing.T) {
	assert.Equal(t, 20.0, lexicalBonus("loves coffee", "Alice loves coffee in the morning"))
}

func TestLexicalBonusTokenSubstring(t *testing.T) {
	assert.Equal(t, 16.0, lexicalBonus("favorite drink please", "My favorite color is blue"))
}

func TestLexicalBonusNoMatch(t *testing.T) {
	assert.Equal(t, 0.0, lexicalBonus("xyzzy", "completely unrelated text"))
}

func TestEffectiveScoreFormula(t *testing.T) {
	got := effectiveScore(80, 60, 0.9, 20)
	want := 0.60*80 + 0.25*60 + 0.15*0.9*100 + 20
	assert.InDelta(t, want, got, 0.0001)
}

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	v := []float64{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 0.0001)
}

func TestCosineSimilarityOrthogonalVectorsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}))
}

func TestCosineSimilarityOppositeVectorsIsNegativeOne(t *testing.T) {
	assert.InDelta(t, -1.0, cosineSimilarity([]float64{1, 2}, []float64{-1, -2}), 0.0001)
}

func TestCosineSimilarityMismatchedLengthsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}))
}

func TestCosineSimilarityEmptyVectorsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity(nil, []float64{1}))
}

func TestCosineSimilarityAtDuplicateThreshold(t *testing.T) {
	// 85-scaled boundary from spec §8: a pair scoring exactly 0.85 on the
	// 0-1 scale (85 on the 0-100 scale orchestrator code uses) qualifies as
	// a duplicate, not merely a conflict candidate.
	a := []float64{1, 0}
	b := []float64{0.85, math.Sqrt(1 - 0.85*0.85)}
	assert.InDelta(t, 0.85, cosineSimilarity(a, b), 0.0001)
}
