package retrieval

import (
	"context"
	"sort"

	"github.com/mnexium/memory-substrate/internal/storage"
	"github.com/mnexium/memory-substrate/pkg/model"
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// dispatchBroad implements spec §4.D step 2 "broad".
func (s *Service) dispatchBroad(ctx context.Context, req Request) (Result, error) {
	fetchLimit := minInt(3*req.Limit, MaxSearchLimit)
	page, err := s.store.ListMemories(ctx, storage.ListOptions{
		ProjectID: req.ProjectID,
		SubjectID: req.SubjectID,
		Limit:     fetchLimit,
	})
	if err != nil {
		return Result{}, err
	}

	items := page.Items
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Importance != items[j].Importance {
			return items[i].Importance > items[j].Importance
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	truncateAt := maxInt(req.Limit, 20)
	if len(items) > truncateAt {
		items = items[:truncateAt]
	}

	candidates := make([]Candidate, len(items))
	for i, m := range items {
		candidates[i] = Candidate{Memory: m, Score: 100, EffectiveScore: float64(m.Importance)}
	}

	return Result{Memories: candidates, Mode: ModeBroad, UsedQueries: []string{req.Query}, Predicates: []string{}}, nil
}

// dispatchSearch implements spec §4.D steps 2 ("direct"/"indirect") and 3
// ("rerank"): build the query set, search+merge, then either truncate or
// rerank depending on mode and candidate count.
func (s *Service) dispatchSearch(ctx context.Context, req Request, mode Mode, c classification) (Result, error) {
	var queries []string
	if mode == ModeDirect {
		queries = dedupeQueries([]string{req.Query}, c.SearchHints)
	} else {
		queries = dedupeQueries([]string{req.Query}, c.SearchHints, c.ExpandedQueries)
	}

	merged := s.searchAndMerge(ctx, req, queries)

	var claimBacked []Candidate
	if len(c.Predicates) > 0 {
		claimBacked = s.claimBackedCandidates(ctx, req, c.Predicates)
		merged = mergeByMemoryID(merged, claimBacked)
	}

	topN := minInt(req.Limit, 5)

	if mode == ModeDirect {
		if len(claimBacked) > 0 {
			return finalize(merged, topN, mode, queries, c.Predicates), nil
		}
		if len(merged) > req.Limit {
			reranked := s.rerank(ctx, merged, topN)
			return finalize(reranked, topN, mode, queries, c.Predicates), nil
		}
		return finalize(merged, topN, mode, queries, c.Predicates), nil
	}

	// indirect
	if len(merged) > req.Limit {
		reranked := s.rerank(ctx, merged, topN)
		return finalize(reranked, topN, mode, queries, c.Predicates), nil
	}
	return finalize(merged, req.Limit, mode, queries, c.Predicates), nil
}

func finalize(candidates []Candidate, limit int, mode Mode, queries, predicates []string) Result {
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].EffectiveScore > candidates[j].EffectiveScore })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	if predicates == nil {
		predicates = []string{}
	}
	return Result{Memories: candidates, Mode: mode, UsedQueries: queries, Predicates: predicates}
}

// searchAndMerge embeds and searches each query in order, applying the rank
// penalty 1-0.03*rank_index within each query's own result order, then
// merges by memory id keeping the highest-scoring variant.
func (s *Service) searchAndMerge(ctx context.Context, req Request, queries []string) []Candidate {
	var all []Candidate
	limit := minInt(2*req.Limit, MaxSearchLimit)

	for _, q := range queries {
		embedding, _ := s.capability.Embed(ctx, q)
		scored, err := s.store.SearchMemories(ctx, storage.SearchOptions{
			ProjectID:      req.ProjectID,
			SubjectID:      req.SubjectID,
			Query:          q,
			QueryEmbedding: embedding,
			Limit:          limit,
		})
		if err != nil {
			continue
		}
		for rank, sm := range scored {
			penalty := 1 - 0.03*float64(rank)
			all = append(all, Candidate{
				Memory:         sm.Memory,
				Score:          sm.Score,
				EffectiveScore: sm.EffectiveScore * penalty,
			})
		}
	}

	return dedupeByMemoryID(all)
}

func dedupeByMemoryID(candidates []Candidate) []Candidate {
	best := make(map[string]Candidate)
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		existing, ok := best[c.Memory.ID]
		if !ok {
			order = append(order, c.Memory.ID)
			best[c.Memory.ID] = c
			continue
		}
		if c.EffectiveScore > existing.EffectiveScore {
			best[c.Memory.ID] = c
		}
	}
	out := make([]Candidate, len(order))
	for i, id := range order {
		out[i] = best[id]
	}
	return out
}

func mergeByMemoryID(a, b []Candidate) []Candidate {
	return dedupeByMemoryID(append(append([]Candidate{}, a...), b...))
}

// claimBackedCandidates synthesizes candidates from current truth rows
// whose predicate is requested and whose source memory is active and
// non-deleted (spec §4.D step 2 "direct").
func (s *Service) claimBackedCandidates(ctx context.Context, req Request, predicates []string) []Candidate {
	wanted := make(map[string]bool, len(predicates))
	for _, p := range predicates {
		wanted[p] = true
	}

	slots, err := s.store.GetCurrentTruth(ctx, req.ProjectID, req.SubjectID, true)
	if err != nil {
		return nil
	}

	var out []Candidate
	for _, slot := range slots {
		if slot.ActiveClaim == nil || !wanted[slot.ActiveClaim.Predicate] {
			continue
		}
		if slot.SourceMemory == nil || slot.SourceMemory.IsDeleted || slot.SourceMemory.Status != model.MemoryStatusActive {
			continue
		}
		out = append(out, Candidate{Memory: *slot.SourceMemory, Score: 100, EffectiveScore: 120})
	}
	return out
}
