package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mnexium/memory-substrate/pkg/model"
)

func TestDedupeQueriesCapsAndPreservesOrder(t *testing.T) {
	out := dedupeQueries([]string{"a", "b"}, []string{"b", "c", "d", "e", "f", "g"})
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, out)
}

func TestDedupeByMemoryIDKeepsHighestScore(t *testing.T) {
	low := Candidate{Memory: model.Memory{ID: "mem_1"}, EffectiveScore: 10}
	high := Candidate{Memory: model.Memory{ID: "mem_1"}, EffectiveScore: 90}
	other := Candidate{Memory: model.Memory{ID: "mem_2"}, EffectiveScore: 40}

	out := dedupeByMemoryID([]Candidate{low, other, high})

	byID := make(map[string]Candidate)
	for _, c := range out {
		byID[c.Memory.ID] = c
	}
	assert.Len(t, out, 2)
	assert.Equal(t, 90.0, byID["mem_1"].EffectiveScore)
	assert.Equal(t, 40.0, byID["mem_2"].EffectiveScore)
}
