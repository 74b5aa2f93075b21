package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const rerankDeadline = 3 * time.Second
const minRerankTextLength = 10

const rerankSystemPrompt = `Rank the candidate memories by relevance to the query.
Respond with exactly one JSON object: {"results":[{"index":0,"relevant":true,"score":0.0}]}
index refers to the 0-based position in the candidate list below. score is 0..1.`

type rerankEntry struct {
	Index    int     `json:"index"`
	Relevant bool    `json:"relevant"`
	Score    float64 `json:"score"`
}

type rerankResponse struct {
	Results []rerankEntry `json:"results"`
}

// rerank implements spec §4.D step 3. candidates are filtered to those with
// memory text >=10 characters; if that set already fits in topK it's
// returned as-is, otherwise a rerank JSON call re-scores and trims it.
func (s *Service) rerank(ctx context.Context, candidates []Candidate, topK int) []Candidate {
	filtered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Memory.Text) >= minRerankTextLength {
			filtered = append(filtered, c)
		}
	}

	if len(filtered) <= topK {
		return filtered
	}

	ctx, cancel := context.WithTimeout(ctx, rerankDeadline)
	defer cancel()

	raw, err := s.capability.CallJSON(ctx, rerankSystemPrompt, buildRerankPrompt(filtered))
	if err != nil {
		return filtered[:topK]
	}

	var resp rerankResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return filtered[:topK]
	}

	var winners []Candidate
	for _, r := range resp.Results {
		if !r.Relevant {
			continue
		}
		c := filtered[clampIndex(r.Index, len(filtered))]
		rerankScore := r.Score * 100
		if rerankScore > c.Score {
			c.Score = rerankScore
		}
		if rerankScore > c.EffectiveScore {
			c.EffectiveScore = rerankScore
		}
		winners = append(winners, c)
	}

	if len(winners) == 0 {
		return filtered[:topK]
	}

	sort.SliceStable(winners, func(i, j int) bool { return winners[i].EffectiveScore > winners[j].EffectiveScore })
	if len(winners) > topK {
		winners = winners[:topK]
	}
	return winners
}

// clampIndex constrains a rerank-response index into [0, n-1] rather than
// discarding an out-of-range entry, per spec §4.D's rerank step.
func clampIndex(index, n int) int {
	if index < 0 {
		return 0
	}
	if index >= n {
		return n - 1
	}
	return index
}

func buildRerankPrompt(candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("Candidates:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d: %s\n", i, c.Memory.Text)
	}
	return b.String()
}
