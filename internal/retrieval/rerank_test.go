package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnexium/memory-substrate/internal/llm"
	"github.com/mnexium/memory-substrate/pkg/model"
)

type fakeJSONCaller struct {
	response string
	err      error
}

func (f fakeJSONCaller) CallJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.response, f.err
}

func candidateWithText(text string) Candidate {
	return Candidate{Memory: model.Memory{Text: text}}
}

func TestClampIndexWithinRangeIsUnchanged(t *testing.T) {
	assert.Equal(t, 2, clampIndex(2, 5))
}

func TestClampIndexNegativeClampsToZero(t *testing.T) {
	assert.Equal(t, 0, clampIndex(-1, 5))
}

func TestClampIndexTooLargeClampsToLastElement(t *testing.T) {
	assert.Equal(t, 4, clampIndex(99, 5))
}

func TestRerankClampsOutOfRangeIndexInsteadOfDropping(t *testing.T) {
	candidates := []Candidate{
		candidateWithText("the quick brown fox jumps"),
		candidateWithText("a second candidate memory"),
		candidateWithText("a third candidate memory"),
	}
	caller := fakeJSONCaller{response: `{"results":[{"index":99,"relevant":true,"score":0.9}]}`}
	s := &Service{capability: llm.NewPrimary("fake", nil, caller)}

	winners := s.rerank(context.Background(), candidates, 1)

	require.Len(t, winners, 1)
	assert.Equal(t, candidates[len(candidates)-1].Memory.Text, winners[0].Memory.Text)
}

func TestRerankReturnsFilteredWhenAlreadyWithinTopK(t *testing.T) {
	candidates := []Candidate{candidateWithText("the quick brown fox jumps")}
	s := &Service{capability: llm.None()}

	winners := s.rerank(context.Background(), candidates, 5)

	assert.Equal(t, candidates, winners)
}
