// Package storagefake is an in-memory implementation of storage.Facade for
// orchestrator and HTTP handler tests, mirroring the teacher's pattern of
// substituting a fake behind the storage interface rather than a real
// database in unit tests.
package storagefake

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mnexium/memory-substrate/internal/storage"
	"github.com/mnexium/memory-substrate/pkg/ids"
	"github.com/mnexium/memory-substrate/pkg/model"
)

// Store is a mutex-guarded in-memory storage.Facade. Zero value is ready to
// use.
type Store struct {
	mu sync.Mutex

	memories map[string]*model.Memory
	claims   map[string]*model.Claim
	slots    map[string]*model.SlotState // key: projectID|subjectID|slot
	edges    []model.ClaimEdge
	recalls  []model.MemoryRecallEvent
}

func New() *Store {
	return &Store{
		memories: make(map[string]*model.Memory),
		claims:   make(map[string]*model.Claim),
		slots:    make(map[string]*model.SlotState),
	}
}

var _ storage.Facade = (*Store)(nil)

func (s *Store) Close() error { return nil }

func slotKey(projectID, subjectID, slot string) string {
	return projectID + "|" + subjectID + "|" + slot
}

// --- memories ---

func (s *Store) ListMemories(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[model.Memory], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Memory
	for _, m := range s.memories {
		if m.ProjectID != opts.ProjectID {
			continue
		}
		if opts.SubjectID != "" && m.SubjectID != opts.SubjectID {
			continue
		}
		if m.IsDeleted && !opts.IncludeDeleted {
			continue
		}
		if m.Status == model.MemoryStatusSuperseded && !opts.IncludeSuperseded {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := len(out)
	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if opts.Limit <= 0 || end > total {
		end = total
	}
	return &storage.PaginatedResult[model.Memory]{Items: out[start:end], Total: total}, nil
}

func (s *Store) ListSupersededMemories(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[model.Memory], error) {
	opts.IncludeSuperseded = true
	page, err := s.ListMemories(ctx, opts)
	if err != nil {
		return nil, err
	}
	var filtered []model.Memory
	for _, m := range page.Items {
		if m.Status == model.MemoryStatusSuperseded {
			filtered = append(filtered, m)
		}
	}
	return &storage.PaginatedResult[model.Memory]{Items: filtered, Total: len(filtered)}, nil
}

func (s *Store) SearchMemories(ctx context.Context, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.ScoredMemory
	for _, m := range s.memories {
		if m.ProjectID != opts.ProjectID || m.IsDeleted || m.Status != model.MemoryStatusActive {
			continue
		}
		if opts.SubjectID != "" && m.SubjectID != opts.SubjectID {
			continue
		}
		if opts.Query != "" && !strings.Contains(strings.ToLower(m.Text), strings.ToLower(opts.Query)) {
			continue
		}
		out = append(out, storage.ScoredMemory{Memory: *m, Score: 50, EffectiveScore: 50})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EffectiveScore > out[j].EffectiveScore })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) CreateMemory(ctx context.Context, m *model.Memory) (*model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ProjectID == "" || m.SubjectID == "" || m.Text == "" {
		return nil, fmt.Errorf("%w: project_id, subject_id and text are required", storage.ErrInvalidInput)
	}
	if m.ID == "" {
		m.ID = ids.New(ids.PrefixMemory)
	}
	if m.Kind == "" {
		m.Kind = model.KindNote
	}
	if m.Visibility == "" {
		m.Visibility = model.VisibilityPrivate
	}
	if m.Status == "" {
		m.Status = model.MemoryStatusActive
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt, m.LastReinforcedAt = now, now, now

	cp := *m
	s.memories[m.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) GetMemory(ctx context.Context, projectID, id string) (*model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok || m.ProjectID != projectID {
		return nil, storage.ErrNotFound
	}
	out := *m
	return &out, nil
}

func (s *Store) UpdateMemory(ctx context.Context, m *model.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.memories[m.ID]
	if !ok || existing.ProjectID != m.ProjectID {
		return storage.ErrNotFound
	}
	m.UpdatedAt = time.Now().UTC()
	cp := *m
	s.memories[m.ID] = &cp
	return nil
}

func (s *Store) DeleteMemory(ctx context.Context, projectID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok || m.ProjectID != projectID {
		return false, storage.ErrNotFound
	}
	if m.IsDeleted {
		return false, nil
	}
	m.IsDeleted = true
	m.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) RestoreMemory(ctx context.Context, projectID, id string) (*model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok || m.ProjectID != projectID {
		return nil, storage.ErrNotFound
	}
	m.IsDeleted = false
	m.Status = model.MemoryStatusActive
	m.SupersededBy = ""
	m.UpdatedAt = time.Now().UTC()
	out := *m
	return &out, nil
}

// FindDuplicateMemory mirrors the postgres store's cosine-similarity scan:
// the most similar active, non-deleted memory scoring >= threshold (on a
// 0-100 scale) wins.
func (s *Store) FindDuplicateMemory(ctx context.Context, projectID, subjectID string, embedding []float64, threshold float64) (*model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.Memory
	var bestSim float64
	for _, m := range s.memories {
		if m.ProjectID != projectID || m.SubjectID != subjectID || m.IsDeleted || m.Status != model.MemoryStatusActive {
			continue
		}
		if len(m.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(embedding, m.Embedding) * 100
		if sim >= threshold && (best == nil || sim > bestSim) {
			best, bestSim = m, sim
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// FindConflictingMemories returns active, non-deleted memories whose
// similarity falls in the half-open band [minSim, maxSim), ordered by
// descending similarity.
func (s *Store) FindConflictingMemories(ctx context.Context, projectID, subjectID string, embedding []float64, minSim, maxSim float64, limit int) ([]model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		memory model.Memory
		sim    float64
	}
	var candidates []scored
	for _, m := range s.memories {
		if m.ProjectID != projectID || m.SubjectID != subjectID || m.IsDeleted || m.Status != model.MemoryStatusActive {
			continue
		}
		if len(m.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(embedding, m.Embedding) * 100
		if sim >= minSim && sim < maxSim {
			candidates = append(candidates, scored{memory: *m, sim: sim})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]model.Memory, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.memory)
	}
	return out, nil
}

// cosineSimilarity mirrors the postgres store's implementation so fake-backed
// tests exercise the same boundary math real queries do.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func (s *Store) SupersedeMemories(ctx context.Context, projectID string, memoryIDs []string, supersededBy string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, id := range memoryIDs {
		m, ok := s.memories[id]
		if !ok || m.ProjectID != projectID || m.Status != model.MemoryStatusActive {
			continue
		}
		m.Status = model.MemoryStatusSuperseded
		m.SupersededBy = supersededBy
		m.UpdatedAt = time.Now().UTC()
		count++
	}
	return count, nil
}

// --- claims ---

func (s *Store) CreateClaim(ctx context.Context, c *model.Claim) (*model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ProjectID == "" || c.SubjectID == "" || c.Predicate == "" || c.ObjectValue == "" {
		return nil, fmt.Errorf("%w: project_id, subject_id, predicate and object_value are required", storage.ErrInvalidInput)
	}
	if c.ClaimID == "" {
		c.ClaimID = ids.New(ids.PrefixClaim)
	}
	if c.Slot == "" {
		c.Slot = c.Predicate
	}
	if c.ClaimType == "" {
		c.ClaimType = model.ClaimTypeFact
	}
	c.Status = model.ClaimStatusActive
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	cp := *c
	s.claims[c.ClaimID] = &cp

	key := slotKey(c.ProjectID, c.SubjectID, c.Slot)
	s.slots[key] = &model.SlotState{
		ProjectID:     c.ProjectID,
		SubjectID:     c.SubjectID,
		Slot:          c.Slot,
		ActiveClaimID: c.ClaimID,
		Status:        model.SlotStatusActive,
		UpdatedAt:     now,
	}

	out := cp
	return &out, nil
}

func (s *Store) RetractClaim(ctx context.Context, projectID, claimID, reason string) (storage.RetractResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimID]
	if !ok || c.ProjectID != projectID {
		return storage.RetractResult{}, storage.ErrNotFound
	}

	now := time.Now().UTC()
	c.Status = model.ClaimStatusRetracted
	c.RetractedAt = &now
	c.RetractReason = reason

	var previous *model.Claim
	for _, other := range s.claims {
		if other.ClaimID == claimID || other.ProjectID != projectID || other.SubjectID != c.SubjectID || other.Slot != c.Slot {
			continue
		}
		if other.Status != model.ClaimStatusActive {
			continue
		}
		if previous == nil || other.CreatedAt.After(previous.CreatedAt) {
			previous = other
		}
	}

	key := slotKey(projectID, c.SubjectID, c.Slot)
	slotState := &model.SlotState{ProjectID: projectID, SubjectID: c.SubjectID, Slot: c.Slot, ReplacedByClaimID: claimID, UpdatedAt: now}
	if previous != nil {
		slotState.ActiveClaimID = previous.ClaimID
		slotState.Status = model.SlotStatusActive
	} else {
		slotState.Status = model.SlotStatusRetracted
	}
	s.slots[key] = slotState

	result := storage.RetractResult{Success: true, ClaimID: claimID, Slot: c.Slot, RestoredPrevious: previous != nil}
	if previous != nil {
		result.PreviousClaimID = previous.ClaimID
		s.edges = append(s.edges, model.ClaimEdge{
			EdgeID: ids.New(ids.PrefixEdge), ProjectID: projectID, FromClaim: claimID, ToClaim: previous.ClaimID,
			EdgeType: model.EdgeRetracts, Weight: 1, ReasonCode: "manual_retraction", ReasonText: reason, CreatedAt: now,
		})
	}
	return result, nil
}

func (s *Store) GetClaim(ctx context.Context, projectID, claimID string) (*model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok || c.ProjectID != projectID {
		return nil, storage.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *Store) GetClaimAssertions(ctx context.Context, projectID, claimID string) ([]model.ClaimAssertion, error) {
	return nil, nil
}

func (s *Store) GetClaimEdges(ctx context.Context, projectID, claimID string, edgeType model.EdgeType) ([]model.ClaimEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ClaimEdge
	for _, e := range s.edges {
		if e.ProjectID != projectID {
			continue
		}
		if e.FromClaim != claimID && e.ToClaim != claimID {
			continue
		}
		if edgeType != "" && e.EdgeType != edgeType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) GetCurrentTruth(ctx context.Context, projectID, subjectID string, includeSource bool) ([]storage.SlotView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.SlotView
	for _, slot := range s.slots {
		if slot.ProjectID != projectID || slot.SubjectID != subjectID || slot.Status != model.SlotStatusActive {
			continue
		}
		out = append(out, s.toSlotView(slot, includeSource))
	}
	return out, nil
}

func (s *Store) GetCurrentSlot(ctx context.Context, projectID, subjectID, slot string) (*storage.SlotView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.slots[slotKey(projectID, subjectID, slot)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	view := s.toSlotView(st, true)
	return &view, nil
}

func (s *Store) GetSlots(ctx context.Context, projectID, subjectID string, limit int) ([]storage.SlotView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.SlotView
	for _, slot := range s.slots {
		if slot.ProjectID != projectID || slot.SubjectID != subjectID {
			continue
		}
		out = append(out, s.toSlotView(slot, false))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetClaimGraph(ctx context.Context, projectID, subjectID string, limit int) (storage.ClaimGraph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	graph := storage.ClaimGraph{Histogram: make(map[model.EdgeType]int)}
	for _, c := range s.claims {
		if c.ProjectID == projectID && c.SubjectID == subjectID {
			graph.Claims = append(graph.Claims, *c)
		}
	}
	for _, e := range s.edges {
		if e.ProjectID == projectID {
			graph.Edges = append(graph.Edges, e)
			graph.Histogram[e.EdgeType]++
		}
	}
	return graph, nil
}

func (s *Store) GetClaimHistory(ctx context.Context, projectID, subjectID, slot string, limit int) ([]storage.ClaimHistoryEntry, error) {
	return nil, nil
}

func (s *Store) toSlotView(st *model.SlotState, includeSource bool) storage.SlotView {
	view := storage.SlotView{Slot: st.Slot, Status: st.Status, ReplacedByClaimID: st.ReplacedByClaimID, UpdatedAt: st.UpdatedAt}
	if st.ActiveClaimID != "" {
		if c, ok := s.claims[st.ActiveClaimID]; ok {
			cp := *c
			view.ActiveClaim = &cp
			if includeSource && cp.SourceMemoryID != "" {
				if m, ok := s.memories[cp.SourceMemoryID]; ok {
					mc := *m
					view.SourceMemory = &mc
				}
			}
		}
	}
	return view
}

// --- recalls ---

func (s *Store) RecordRecall(ctx context.Context, event *model.MemoryRecallEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = ids.New("rec")
	}
	event.CreatedAt = time.Now().UTC()
	s.recalls = append(s.recalls, *event)
	return nil
}

func (s *Store) ListRecallsByChat(ctx context.Context, projectID, chatID string) ([]model.MemoryRecallEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MemoryRecallEvent
	for _, r := range s.recalls {
		if r.ProjectID == projectID && r.ChatID == chatID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ListRecallsByMemory(ctx context.Context, projectID, memoryID string, limit int) ([]model.MemoryRecallEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MemoryRecallEvent
	for _, r := range s.recalls {
		if r.ProjectID == projectID && r.MemoryID == memoryID {
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) RecallStats(ctx context.Context, projectID string) (storage.RecallStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := storage.RecallStats{}
	subjects := make(map[string]bool)
	chats := make(map[string]bool)
	var sum float64
	for _, r := range s.recalls {
		if r.ProjectID != projectID {
			continue
		}
		stats.Count++
		subjects[r.SubjectID] = true
		if r.ChatID != "" {
			chats[r.ChatID] = true
		}
		sum += r.Similarity
	}
	stats.DistinctSubjects = len(subjects)
	stats.DistinctChats = len(chats)
	if stats.Count > 0 {
		stats.AvgScore = sum / float64(stats.Count)
	}
	return stats, nil
}
