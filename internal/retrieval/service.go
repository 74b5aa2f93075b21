package retrieval

import (
	"context"
	"strings"

	"github.com/mnexium/memory-substrate/internal/llm"
	"github.com/mnexium/memory-substrate/internal/storage"
)

// Service implements spec §4.D's simple and LLM-expanded retrieval variants.
type Service struct {
	store                storage.Facade
	capability           llm.Capability
	useRetrievalExpansion bool
}

func New(store storage.Facade, capability llm.Capability, useRetrievalExpansion bool) *Service {
	return &Service{store: store, capability: capability, useRetrievalExpansion: useRetrievalExpansion}
}

// Retrieve dispatches to the LLM-expanded variant when a capability is
// configured and expansion is enabled for the deployment, else the simple
// variant.
func (s *Service) Retrieve(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Query) == "" && s.useRetrievalExpansion && s.capability.Available() {
		return Result{Memories: nil, Mode: ModeIndirect, UsedQueries: []string{}, Predicates: []string{}}, nil
	}

	if req.Limit <= 0 {
		req.Limit = DefaultSearchLimit
	}
	if req.Limit > MaxSearchLimit {
		req.Limit = MaxSearchLimit
	}

	if !s.useRetrievalExpansion || !s.capability.Available() {
		return s.retrieveSimple(ctx, req)
	}

	classification := s.classify(ctx, req)

	switch classification.Mode {
	case ModeBroad:
		return s.dispatchBroad(ctx, req)
	case ModeDirect:
		return s.dispatchSearch(ctx, req, ModeDirect, classification)
	default:
		return s.dispatchSearch(ctx, req, ModeIndirect, classification)
	}
}

func (s *Service) retrieveSimple(ctx context.Context, req Request) (Result, error) {
	embedding, _ := s.capability.Embed(ctx, req.Query)

	scored, err := s.store.SearchMemories(ctx, storage.SearchOptions{
		ProjectID:      req.ProjectID,
		SubjectID:      req.SubjectID,
		Query:          req.Query,
		QueryEmbedding: embedding,
		Limit:          req.Limit,
		MinScore:       req.MinScore,
	})
	if err != nil {
		return Result{}, err
	}

	return Result{
		Memories:    toCandidates(scored),
		Mode:        ModeSimple,
		UsedQueries: []string{req.Query},
		Predicates:  []string{},
	}, nil
}

func toCandidates(scored []storage.ScoredMemory) []Candidate {
	out := make([]Candidate, len(scored))
	for i, sm := range scored {
		out[i] = Candidate{Memory: sm.Memory, Score: sm.Score, EffectiveScore: sm.EffectiveScore}
	}
	return out
}

// dedupeQueries builds dedupe(queries...) truncated to QuerySetCap,
// preserving first-seen order and skipping blanks.
func dedupeQueries(groups ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range groups {
		for _, q := range group {
			q = strings.TrimSpace(q)
			if q == "" || seen[q] {
				continue
			}
			seen[q] = true
			out = append(out, q)
			if len(out) == QuerySetCap {
				return out
			}
		}
	}
	return out
}
