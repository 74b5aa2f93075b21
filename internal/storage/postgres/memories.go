package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/mnexium/memory-substrate/internal/storage"
	"github.com/mnexium/memory-substrate/pkg/ids"
	"github.com/mnexium/memory-substrate/pkg/model"
)

var _ storage.MemoryFacade = (*Store)(nil)

func (s *Store) ListMemories(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[model.Memory], error) {
	opts.Normalize()

	where := []string{"project_id = $1"}
	args := []any{opts.ProjectID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.SubjectID != "" {
		where = append(where, "subject_id = "+arg(opts.SubjectID))
	}
	if !opts.IncludeDeleted {
		where = append(where, "is_deleted = false")
	}
	if !opts.IncludeSuperseded {
		where = append(where, "status = 'active'")
	}

	whereSQL := strings.Join(where, " AND ")

	var total int
	countSQL := "SELECT COUNT(*) FROM memories WHERE " + whereSQL
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: list count: %w", err)
	}

	limitArg, offsetArg := arg(opts.Limit), arg(opts.Offset)
	querySQL := "SELECT " + memoryColumns + " FROM memories WHERE " + whereSQL +
		" ORDER BY created_at DESC LIMIT " + limitArg + " OFFSET " + offsetArg

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list query: %w", err)
	}
	defer rows.Close()

	items := make([]model.Memory, 0, opts.Limit)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list scan: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &storage.PaginatedResult[model.Memory]{
		Items:   items,
		Total:   total,
		HasMore: opts.Offset+len(items) < total,
	}, nil
}

func (s *Store) ListSupersededMemories(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[model.Memory], error) {
	opts.IncludeSuperseded = true
	opts.Normalize()

	where := []string{"project_id = $1", "status = 'superseded'"}
	args := []any{opts.ProjectID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.SubjectID != "" {
		where = append(where, "subject_id = "+arg(opts.SubjectID))
	}
	if !opts.IncludeDeleted {
		where = append(where, "is_deleted = false")
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE "+whereSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: list superseded count: %w", err)
	}

	limitArg, offsetArg := arg(opts.Limit), arg(opts.Offset)
	querySQL := "SELECT " + memoryColumns + " FROM memories WHERE " + whereSQL +
		" ORDER BY created_at DESC LIMIT " + limitArg + " OFFSET " + offsetArg

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list superseded query: %w", err)
	}
	defer rows.Close()

	items := make([]model.Memory, 0, opts.Limit)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return &storage.PaginatedResult[model.Memory]{
		Items:   items,
		Total:   total,
		HasMore: opts.Offset+len(items) < total,
	}, nil
}

// SearchMemories implements spec §4.A's scoring/tokenization/filter rules.
// Candidates are active, non-deleted rows for the project (+subject when
// given); similarity and lexical matching are computed in process since the
// fusion formula mixes a SQL-unfriendly substring rule with cosine distance.
func (s *Store) SearchMemories(ctx context.Context, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	opts.Normalize()

	where := []string{"project_id = $1", "is_deleted = false", "status = 'active'"}
	args := []any{opts.ProjectID}
	if opts.SubjectID != "" {
		args = append(args, opts.SubjectID)
		where = append(where, fmt.Sprintf("subject_id = $%d", len(args)))
	}

	querySQL := "SELECT " + memoryColumns + " FROM memories WHERE " + strings.Join(where, " AND ") + " ORDER BY created_at DESC"
	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search query: %w", err)
	}
	defer rows.Close()

	hasEmbedding := len(opts.QueryEmbedding) > 0
	out := make([]storage.ScoredMemory, 0, opts.Limit)

	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: search scan: %w", err)
		}

		var similarity float64
		if hasEmbedding && len(m.Embedding) > 0 {
			similarity = cosineSimilarity(opts.QueryEmbedding, m.Embedding) * 100
		}

		qualifies := opts.Query == "" || matchesSubstring(opts.Query, m.Text)
		if hasEmbedding && similarity >= opts.MinScore*100 {
			qualifies = true
		}
		if !qualifies {
			continue
		}

		var score, effective float64
		if hasEmbedding {
			bonus := lexicalBonus(opts.Query, m.Text)
			score = similarity
			effective = effectiveScore(similarity, float64(m.Importance), m.Confidence, bonus)
		} else {
			score = 0
			effective = rankOnlyScore(float64(m.Importance), m.Confidence)
		}

		out = append(out, storage.ScoredMemory{Memory: m, Score: score, EffectiveScore: effective})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].EffectiveScore > out[j].EffectiveScore })
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

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

func (s *Store) CreateMemory(ctx context.Context, m *model.Memory) (*model.Memory, error) {
	if m == nil || m.Text == "" || m.ProjectID == "" || m.SubjectID == "" {
		return nil, fmt.Errorf("%w: project_id, subject_id and text are required", storage.ErrInvalidInput)
	}
	if m.ID == "" {
		m.ID = ids.New(ids.PrefixMemory)
	}
	if m.Kind == "" {
		m.Kind = model.KindFact
	}
	if m.Visibility == "" {
		m.Visibility = model.VisibilityPrivate
	}
	if m.Importance == 0 {
		m.Importance = 50
	}
	if m.Confidence == 0 {
		m.Confidence = 0.95
	}
	if m.SourceType == "" {
		m.SourceType = "explicit"
	}
	if m.Status == "" {
		m.Status = model.MemoryStatusActive
	}
	m.Importance = clampInt(m.Importance, 0, 100)
	m.Confidence = clampFloat(m.Confidence, 0, 1)

	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt, m.LastReinforcedAt = now, now, now

	tagsJSON, err := marshalJSON(m.Tags)
	if err != nil {
		return nil, fmt.Errorf("%w: tags: %v", storage.ErrInvalidInput, err)
	}
	metaJSON, err := marshalJSON(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", storage.ErrInvalidInput, err)
	}

	const insertSQL = `
		INSERT INTO memories (
			id, project_id, subject_id, text, kind, visibility, importance,
			confidence, is_temporal, tags, metadata, embedding, status,
			superseded_by, is_deleted, source_type, created_at, updated_at,
			last_reinforced_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`
	_, err = s.db.ExecContext(ctx, insertSQL,
		m.ID, m.ProjectID, m.SubjectID, m.Text, m.Kind, m.Visibility, m.Importance,
		m.Confidence, m.IsTemporal, tagsJSON, metaJSON, vectorOrNil(m.Embedding), m.Status,
		nullIfEmpty(m.SupersededBy), m.IsDeleted, m.SourceType, m.CreatedAt, m.UpdatedAt,
		m.LastReinforcedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: memory %s", storage.ErrAlreadyExists, m.ID)
		}
		return nil, fmt.Errorf("postgres: create memory: %w", err)
	}
	return m, nil
}

func (s *Store) GetMemory(ctx context.Context, projectID, id string) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+memoryColumns+" FROM memories WHERE project_id = $1 AND id = $2", projectID, id)
	m, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get memory: %w", err)
	}
	return &m, nil
}

func (s *Store) UpdateMemory(ctx context.Context, m *model.Memory) error {
	if m == nil || m.ID == "" || m.ProjectID == "" {
		return fmt.Errorf("%w: id and project_id are required", storage.ErrInvalidInput)
	}
	m.Importance = clampInt(m.Importance, 0, 100)
	m.Confidence = clampFloat(m.Confidence, 0, 1)
	m.UpdatedAt = time.Now().UTC()

	tagsJSON, err := marshalJSON(m.Tags)
	if err != nil {
		return fmt.Errorf("%w: tags: %v", storage.ErrInvalidInput, err)
	}
	metaJSON, err := marshalJSON(m.Metadata)
	if err != nil {
		return fmt.Errorf("%w: metadata: %v", storage.ErrInvalidInput, err)
	}

	const updateSQL = `
		UPDATE memories SET
			text=$1, kind=$2, visibility=$3, importance=$4, confidence=$5,
			is_temporal=$6, tags=$7, metadata=$8, embedding=$9, status=$10,
			superseded_by=$11, is_deleted=$12, updated_at=$13, last_reinforced_at=$14
		WHERE project_id=$15 AND id=$16
	`
	res, err := s.db.ExecContext(ctx, updateSQL,
		m.Text, m.Kind, m.Visibility, m.Importance, m.Confidence, m.IsTemporal,
		tagsJSON, metaJSON, vectorOrNil(m.Embedding), m.Status, nullIfEmpty(m.SupersededBy),
		m.IsDeleted, m.UpdatedAt, m.LastReinforcedAt, m.ProjectID, m.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update memory: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMemory(ctx context.Context, projectID, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET is_deleted = true, updated_at = now()
		 WHERE project_id = $1 AND id = $2 AND is_deleted = false`,
		projectID, id)
	if err != nil {
		return false, fmt.Errorf("postgres: delete memory: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// An already-deleted row and a missing row both report
		// deleted=false with no error; the caller maps either to a
		// non-transition response.
		return false, nil
	}
	return true, nil
}

func (s *Store) RestoreMemory(ctx context.Context, projectID, id string) (*model.Memory, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET status = 'active', superseded_by = NULL, updated_at = now()
		 WHERE project_id = $1 AND id = $2 AND is_deleted = false`,
		projectID, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: restore memory: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, storage.ErrNotFound
	}
	return s.GetMemory(ctx, projectID, id)
}

func (s *Store) FindDuplicateMemory(ctx context.Context, projectID, subjectID string, embedding []float64, threshold float64) (*model.Memory, error) {
	if !s.pgvectorAvailable || len(embedding) == 0 {
		return nil, nil
	}
	vec := toVector(embedding)
	const querySQL = `
		SELECT ` + memoryColumns + `,
			(1 - (embedding <=> $3)) * 100 AS similarity
		FROM memories
		WHERE project_id = $1 AND subject_id = $2 AND is_deleted = false
		  AND status = 'active' AND embedding IS NOT NULL
		ORDER BY embedding <=> $3
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, querySQL, projectID, subjectID, vec)
	m, similarity, err := scanMemoryWithScore(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: find duplicate: %w", err)
	}
	if similarity < threshold {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) FindConflictingMemories(ctx context.Context, projectID, subjectID string, embedding []float64, minSim, maxSim float64, limit int) ([]model.Memory, error) {
	if !s.pgvectorAvailable || len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	vec := toVector(embedding)
	const querySQL = `
		SELECT ` + memoryColumns + `,
			(1 - (embedding <=> $3)) * 100 AS similarity
		FROM memories
		WHERE project_id = $1 AND subject_id = $2 AND is_deleted = false
		  AND status = 'active' AND embedding IS NOT NULL
		ORDER BY embedding <=> $3
		LIMIT 500
	`
	rows, err := s.db.QueryContext(ctx, querySQL, projectID, subjectID, vec)
	if err != nil {
		return nil, fmt.Errorf("postgres: find conflicting: %w", err)
	}
	defer rows.Close()

	out := make([]model.Memory, 0, limit)
	for rows.Next() {
		m, similarity, err := scanMemoryWithScore(rows)
		if err != nil {
			return nil, err
		}
		if similarity >= minSim && similarity < maxSim {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, rows.Err()
}

func (s *Store) SupersedeMemories(ctx context.Context, projectID string, memoryIDs []string, supersededBy string) (int, error) {
	if len(memoryIDs) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET status = 'superseded', superseded_by = $1, updated_at = now()
		 WHERE project_id = $2 AND id = ANY($3) AND status = 'active'`,
		supersededBy, projectID, pq.Array(memoryIDs))
	if err != nil {
		return 0, fmt.Errorf("postgres: supersede memories: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanMemoryWithScore(r rowScanner) (model.Memory, float64, error) {
	var m model.Memory
	var tagsJSON, metaJSON []byte
	var embedding pgvector.Vector
	var supersededBy sql.NullString
	var similarity float64

	err := r.Scan(
		&m.ID, &m.ProjectID, &m.SubjectID, &m.Text, &m.Kind, &m.Visibility,
		&m.Importance, &m.Confidence, &m.IsTemporal, &tagsJSON, &metaJSON,
		&embedding, &m.Status, &supersededBy, &m.IsDeleted, &m.SourceType,
		&m.CreatedAt, &m.UpdatedAt, &m.LastReinforcedAt, &similarity,
	)
	if err != nil {
		return model.Memory{}, 0, err
	}
	if len(tagsJSON) > 0 {
		_ = json.Unmarshal(tagsJSON, &m.Tags)
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &m.Metadata)
	}
	m.Embedding = fromVector(embedding)
	m.SupersededBy = supersededBy.String
	return m, similarity, nil
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func vectorOrNil(embedding []float64) any {
	if len(embedding) == 0 {
		return nil
	}
	return toVector(embedding)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}
