package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/mnexium/memory-substrate/internal/storage"
	"github.com/mnexium/memory-substrate/pkg/ids"
	"github.com/mnexium/memory-substrate/pkg/model"
)

var _ storage.ClaimFacade = (*Store)(nil)

const claimColumns = `
	claim_id, project_id, subject_id, predicate, object_value, slot, claim_type,
	confidence, importance, tags, source_memory_id, subject_entity, status,
	created_at, updated_at, valid_from, valid_until, embedding, retracted_at,
	retract_reason
`

var (
	favoriteLikesDislikesSlot = regexp.MustCompile(`^(favorite_|likes_|dislikes_)`)
	wantsSlot                 = regexp.MustCompile(`^wants_`)
	didEventSlot              = regexp.MustCompile(`^(did_|event_)`)
)

// inferClaimType derives a claim_type from its predicate per spec §4.F step 1.
func inferClaimType(predicate string) model.ClaimType {
	switch {
	case favoriteLikesDislikesSlot.MatchString(predicate):
		return model.ClaimTypePreference
	case strings.Contains(predicate, "goal") || wantsSlot.MatchString(predicate):
		return model.ClaimTypeGoal
	case didEventSlot.MatchString(predicate):
		return model.ClaimTypeEvent
	default:
		return model.ClaimTypeFact
	}
}

// CreateClaim performs the atomic insert-claim + insert-assertion +
// upsert-slot-state transaction of spec §4.F "Create". Previously-winning
// claims on the slot are left status='active'; promotion is visible only
// through slot_state.
func (s *Store) CreateClaim(ctx context.Context, c *model.Claim) (*model.Claim, error) {
	if c == nil || c.ProjectID == "" || c.SubjectID == "" || c.Predicate == "" || c.ObjectValue == "" {
		return nil, fmt.Errorf("%w: project_id, subject_id, predicate and object_value are required", storage.ErrInvalidInput)
	}
	if c.ClaimID == "" {
		c.ClaimID = ids.New(ids.PrefixClaim)
	}
	if c.Slot == "" {
		c.Slot = c.Predicate
	}
	if c.ClaimType == "" {
		c.ClaimType = inferClaimType(c.Predicate)
	}
	if c.Confidence == 0 {
		c.Confidence = 0.8
	}
	if c.SubjectEntity == "" {
		c.SubjectEntity = "self"
	}
	c.Status = model.ClaimStatusActive

	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin create-claim tx: %w", err)
	}
	defer tx.Rollback()

	tagsJSON, err := marshalJSON(c.Tags)
	if err != nil {
		return nil, fmt.Errorf("%w: tags: %v", storage.ErrInvalidInput, err)
	}

	const insertClaim = `
		INSERT INTO claims (
			claim_id, project_id, subject_id, predicate, object_value, slot,
			claim_type, confidence, importance, tags, source_memory_id,
			subject_entity, status, created_at, updated_at, valid_from,
			valid_until, embedding
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`
	_, err = tx.ExecContext(ctx, insertClaim,
		c.ClaimID, c.ProjectID, c.SubjectID, c.Predicate, c.ObjectValue, c.Slot,
		c.ClaimType, c.Confidence, c.Importance, tagsJSON, nullIfEmpty(c.SourceMemoryID),
		c.SubjectEntity, c.Status, c.CreatedAt, c.UpdatedAt, c.ValidFrom, c.ValidUntil,
		vectorOrNil(c.Embedding),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: claim %s", storage.ErrAlreadyExists, c.ClaimID)
		}
		return nil, fmt.Errorf("postgres: insert claim: %w", err)
	}

	const insertAssertion = `
		INSERT INTO claim_assertions (
			assertion_id, claim_id, memory_id, object_type, value_string,
			confidence, status, first_seen_at, last_seen_at
		) VALUES ($1,$2,$3,'string',$4,$5,'active',$6,$6)
	`
	_, err = tx.ExecContext(ctx, insertAssertion,
		ids.New(ids.PrefixAssertion), c.ClaimID, nullIfEmpty(c.SourceMemoryID),
		c.ObjectValue, c.Confidence, now,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: insert claim assertion: %w", err)
	}

	const upsertSlot = `
		INSERT INTO slot_state (project_id, subject_id, slot, active_claim_id, status, replaced_by_claim_id, updated_at)
		VALUES ($1,$2,$3,$4,'active',NULL,$5)
		ON CONFLICT (project_id, subject_id, slot) DO UPDATE SET
			active_claim_id = excluded.active_claim_id,
			status = 'active',
			replaced_by_claim_id = NULL,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, upsertSlot, c.ProjectID, c.SubjectID, c.Slot, c.ClaimID, now); err != nil {
		return nil, fmt.Errorf("postgres: upsert slot state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: commit create-claim: %w", err)
	}
	return c, nil
}

// RetractClaim performs the atomic retract transaction of spec §4.F "Retract".
func (s *Store) RetractClaim(ctx context.Context, projectID, claimID, reason string) (storage.RetractResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.RetractResult{}, fmt.Errorf("postgres: begin retract tx: %w", err)
	}
	defer tx.Rollback()

	var subjectID, slot, status string
	err = tx.QueryRowContext(ctx,
		`SELECT subject_id, slot, status FROM claims WHERE project_id=$1 AND claim_id=$2`,
		projectID, claimID).Scan(&subjectID, &slot, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.RetractResult{Success: false}, nil
		}
		return storage.RetractResult{}, fmt.Errorf("postgres: lookup claim: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE claims SET status='retracted', retracted_at=$1, retract_reason=$2, updated_at=$1
		 WHERE project_id=$3 AND claim_id=$4`,
		now, reason, projectID, claimID)
	if err != nil {
		return storage.RetractResult{}, fmt.Errorf("postgres: retract claim: %w", err)
	}

	var previousClaimID sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT claim_id FROM claims
		 WHERE project_id=$1 AND subject_id=$2 AND slot=$3 AND claim_id != $4 AND status='active'
		 ORDER BY created_at DESC LIMIT 1`,
		projectID, subjectID, slot, claimID).Scan(&previousClaimID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return storage.RetractResult{}, fmt.Errorf("postgres: find previous claim: %w", err)
	}

	restoredPrevious := previousClaimID.Valid
	slotStatus := "retracted"
	if restoredPrevious {
		slotStatus = "active"
	}

	const upsertSlot = `
		INSERT INTO slot_state (project_id, subject_id, slot, active_claim_id, status, replaced_by_claim_id, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (project_id, subject_id, slot) DO UPDATE SET
			active_claim_id = excluded.active_claim_id,
			status = excluded.status,
			replaced_by_claim_id = excluded.replaced_by_claim_id,
			updated_at = excluded.updated_at
	`
	var activeClaimIDArg any
	if restoredPrevious {
		activeClaimIDArg = previousClaimID.String
	}
	_, err = tx.ExecContext(ctx, upsertSlot, projectID, subjectID, slot, activeClaimIDArg, slotStatus, claimID, now)
	if err != nil {
		return storage.RetractResult{}, fmt.Errorf("postgres: upsert slot state on retract: %w", err)
	}

	if restoredPrevious {
		const insertEdge = `
			INSERT INTO claim_edges (edge_id, project_id, from_claim, to_claim, edge_type, weight, reason_code, reason_text, created_at)
			VALUES ($1,$2,$3,$4,'retracts',1.0,'manual_retraction',$5,$6)
			ON CONFLICT (project_id, from_claim, to_claim, edge_type) DO NOTHING
		`
		_, err = tx.ExecContext(ctx, insertEdge,
			ids.New(ids.PrefixEdge), projectID, claimID, previousClaimID.String, reason, now)
		if err != nil {
			return storage.RetractResult{}, fmt.Errorf("postgres: insert retract edge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.RetractResult{}, fmt.Errorf("postgres: commit retract: %w", err)
	}

	return storage.RetractResult{
		Success:          true,
		ClaimID:          claimID,
		Slot:             slot,
		PreviousClaimID:  previousClaimID.String,
		RestoredPrevious: restoredPrevious,
	}, nil
}

func (s *Store) GetClaim(ctx context.Context, projectID, claimID string) (*model.Claim, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+claimColumns+" FROM claims WHERE project_id=$1 AND claim_id=$2", projectID, claimID)
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get claim: %w", err)
	}
	return &c, nil
}

func (s *Store) GetClaimAssertions(ctx context.Context, projectID, claimID string) ([]model.ClaimAssertion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ca.assertion_id, ca.claim_id, ca.memory_id, ca.object_type, ca.value_string,
		       ca.value_number, ca.value_date, ca.value_json, ca.confidence, ca.status,
		       ca.first_seen_at, ca.last_seen_at
		FROM claim_assertions ca
		JOIN claims c ON c.claim_id = ca.claim_id
		WHERE c.project_id = $1 AND ca.claim_id = $2
		ORDER BY ca.first_seen_at ASC
	`, projectID, claimID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get claim assertions: %w", err)
	}
	defer rows.Close()

	var out []model.ClaimAssertion
	for rows.Next() {
		var a model.ClaimAssertion
		var memoryID sql.NullString
		var valueString sql.NullString
		var valueJSON []byte
		if err := rows.Scan(&a.AssertionID, &a.ClaimID, &memoryID, &a.ObjectType, &valueString,
			&a.ValueNumber, &a.ValueDate, &valueJSON, &a.Confidence, &a.Status,
			&a.FirstSeenAt, &a.LastSeenAt); err != nil {
			return nil, err
		}
		a.MemoryID = memoryID.String
		a.ValueString = valueString.String
		if len(valueJSON) > 0 {
			_ = json.Unmarshal(valueJSON, &a.ValueJSON)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetClaimEdges(ctx context.Context, projectID, claimID string, edgeType model.EdgeType) ([]model.ClaimEdge, error) {
	query := `SELECT edge_id, project_id, from_claim, to_claim, edge_type, weight, reason_code, reason_text, created_at
	          FROM claim_edges WHERE project_id=$1 AND (from_claim=$2 OR to_claim=$2)`
	args := []any{projectID, claimID}
	if edgeType != "" {
		query += " AND edge_type = $3"
		args = append(args, edgeType)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: get claim edges: %w", err)
	}
	defer rows.Close()

	var out []model.ClaimEdge
	for rows.Next() {
		var e model.ClaimEdge
		var reasonCode, reasonText sql.NullString
		if err := rows.Scan(&e.EdgeID, &e.ProjectID, &e.FromClaim, &e.ToClaim, &e.EdgeType,
			&e.Weight, &reasonCode, &reasonText, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ReasonCode, e.ReasonText = reasonCode.String, reasonText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetCurrentTruth(ctx context.Context, projectID, subjectID string, includeSource bool) ([]storage.SlotView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ss.slot, ss.status, ss.replaced_by_claim_id, ss.updated_at,
		       `+claimColumns+`
		FROM slot_state ss
		JOIN claims c ON c.claim_id = ss.active_claim_id
		WHERE ss.project_id = $1 AND ss.subject_id = $2 AND ss.status = 'active'
		ORDER BY ss.slot
	`, projectID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get current truth: %w", err)
	}
	defer rows.Close()

	views, err := scanSlotViews(rows)
	if err != nil {
		return nil, err
	}
	if includeSource {
		s.attachSourceMemories(ctx, projectID, views)
	}
	return views, nil
}

func (s *Store) GetCurrentSlot(ctx context.Context, projectID, subjectID, slot string) (*storage.SlotView, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ss.slot, ss.status, ss.replaced_by_claim_id, ss.updated_at,
		       `+claimColumns+`
		FROM slot_state ss
		JOIN claims c ON c.claim_id = ss.active_claim_id
		WHERE ss.project_id = $1 AND ss.subject_id = $2 AND ss.slot = $3
	`, projectID, subjectID, slot)

	view, err := scanSlotView(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get current slot: %w", err)
	}
	return &view, nil
}

func (s *Store) GetSlots(ctx context.Context, projectID, subjectID string, limit int) ([]storage.SlotView, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ss.slot, ss.status, ss.replaced_by_claim_id, ss.updated_at,
		       `+claimColumns+`
		FROM slot_state ss
		JOIN claims c ON c.claim_id = ss.active_claim_id
		WHERE ss.project_id = $1 AND ss.subject_id = $2
		ORDER BY ss.updated_at DESC
		LIMIT $3
	`, projectID, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: get slots: %w", err)
	}
	defer rows.Close()
	return scanSlotViews(rows)
}

func (s *Store) GetClaimGraph(ctx context.Context, projectID, subjectID string, limit int) (storage.ClaimGraph, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+claimColumns+" FROM claims WHERE project_id=$1 AND subject_id=$2 ORDER BY created_at DESC LIMIT $3",
		projectID, subjectID, limit)
	if err != nil {
		return storage.ClaimGraph{}, fmt.Errorf("postgres: claim graph claims: %w", err)
	}
	var claims []model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			rows.Close()
			return storage.ClaimGraph{}, err
		}
		claims = append(claims, c)
	}
	rows.Close()

	claimIDs := make([]string, len(claims))
	for i, c := range claims {
		claimIDs[i] = c.ClaimID
	}

	edgeRows, err := s.db.QueryContext(ctx, `
		SELECT edge_id, project_id, from_claim, to_claim, edge_type, weight, reason_code, reason_text, created_at
		FROM claim_edges WHERE project_id = $1 AND (from_claim = ANY($2) OR to_claim = ANY($2))
	`, projectID, pq.Array(claimIDs))
	if err != nil {
		return storage.ClaimGraph{}, fmt.Errorf("postgres: claim graph edges: %w", err)
	}
	defer edgeRows.Close()

	histogram := make(map[model.EdgeType]int)
	var edges []model.ClaimEdge
	for edgeRows.Next() {
		var e model.ClaimEdge
		var reasonCode, reasonText sql.NullString
		if err := edgeRows.Scan(&e.EdgeID, &e.ProjectID, &e.FromClaim, &e.ToClaim, &e.EdgeType,
			&e.Weight, &reasonCode, &reasonText, &e.CreatedAt); err != nil {
			return storage.ClaimGraph{}, err
		}
		e.ReasonCode, e.ReasonText = reasonCode.String, reasonText.String
		edges = append(edges, e)
		histogram[e.EdgeType]++
	}

	return storage.ClaimGraph{Claims: claims, Edges: edges, Histogram: histogram}, edgeRows.Err()
}

func (s *Store) GetClaimHistory(ctx context.Context, projectID, subjectID, slot string, limit int) ([]storage.ClaimHistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+claimColumns+" FROM claims WHERE project_id=$1 AND subject_id=$2 AND slot=$3 ORDER BY created_at DESC LIMIT $4",
		projectID, subjectID, slot, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: claim history: %w", err)
	}
	var claims []model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claims = append(claims, c)
	}
	rows.Close()
	if len(claims) == 0 {
		return nil, nil
	}

	claimIDs := make([]string, len(claims))
	for i, c := range claims {
		claimIDs[i] = c.ClaimID
	}
	edgeRows, err := s.db.QueryContext(ctx, `
		SELECT edge_id, project_id, from_claim, to_claim, edge_type, weight, reason_code, reason_text, created_at
		FROM claim_edges WHERE project_id=$1 AND edge_type='supersedes' AND (from_claim=ANY($2) OR to_claim=ANY($2))
	`, projectID, pq.Array(claimIDs))
	if err != nil {
		return nil, fmt.Errorf("postgres: claim history edges: %w", err)
	}
	defer edgeRows.Close()
	var supersedes []model.ClaimEdge
	for edgeRows.Next() {
		var e model.ClaimEdge
		var reasonCode, reasonText sql.NullString
		if err := edgeRows.Scan(&e.EdgeID, &e.ProjectID, &e.FromClaim, &e.ToClaim, &e.EdgeType,
			&e.Weight, &reasonCode, &reasonText, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ReasonCode, e.ReasonText = reasonCode.String, reasonText.String
		supersedes = append(supersedes, e)
	}

	return []storage.ClaimHistoryEntry{{Slot: slot, Claims: claims, SupersedesEdges: supersedes}}, edgeRows.Err()
}

func (s *Store) attachSourceMemories(ctx context.Context, projectID string, views []storage.SlotView) {
	for i := range views {
		if views[i].ActiveClaim == nil || views[i].ActiveClaim.SourceMemoryID == "" {
			continue
		}
		m, err := s.GetMemory(ctx, projectID, views[i].ActiveClaim.SourceMemoryID)
		if err != nil {
			continue
		}
		views[i].SourceMemory = m
	}
}

func scanClaim(r rowScanner) (model.Claim, error) {
	var c model.Claim
	var tagsJSON []byte
	var sourceMemoryID sql.NullString
	var embedding pgvector.Vector
	var retractedAt sql.NullTime
	var retractReason sql.NullString

	err := r.Scan(
		&c.ClaimID, &c.ProjectID, &c.SubjectID, &c.Predicate, &c.ObjectValue, &c.Slot,
		&c.ClaimType, &c.Confidence, &c.Importance, &tagsJSON, &sourceMemoryID,
		&c.SubjectEntity, &c.Status, &c.CreatedAt, &c.UpdatedAt, &c.ValidFrom, &c.ValidUntil,
		&embedding, &retractedAt, &retractReason,
	)
	if err != nil {
		return model.Claim{}, err
	}
	if len(tagsJSON) > 0 {
		_ = json.Unmarshal(tagsJSON, &c.Tags)
	}
	c.SourceMemoryID = sourceMemoryID.String
	c.Embedding = fromVector(embedding)
	if retractedAt.Valid {
		c.RetractedAt = &retractedAt.Time
	}
	c.RetractReason = retractReason.String
	return c, nil
}

func scanSlotViews(rows *sql.Rows) ([]storage.SlotView, error) {
	defer rows.Close()
	var out []storage.SlotView
	for rows.Next() {
		v, err := scanSlotViewRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanSlotView(r rowScanner) (storage.SlotView, error) {
	return scanSlotViewRow(r)
}

func scanSlotViewRow(r rowScanner) (storage.SlotView, error) {
	var v storage.SlotView
	var status string
	var replacedBy sql.NullString

	var c model.Claim
	var tagsJSON []byte
	var sourceMemoryID sql.NullString
	var embedding pgvector.Vector
	var retractedAt sql.NullTime
	var retractReason sql.NullString

	err := r.Scan(
		&v.Slot, &status, &replacedBy, &v.UpdatedAt,
		&c.ClaimID, &c.ProjectID, &c.SubjectID, &c.Predicate, &c.ObjectValue, &c.Slot,
		&c.ClaimType, &c.Confidence, &c.Importance, &tagsJSON, &sourceMemoryID,
		&c.SubjectEntity, &c.Status, &c.CreatedAt, &c.UpdatedAt, &c.ValidFrom, &c.ValidUntil,
		&embedding, &retractedAt, &retractReason,
	)
	if err != nil {
		return storage.SlotView{}, err
	}
	if len(tagsJSON) > 0 {
		_ = json.Unmarshal(tagsJSON, &c.Tags)
	}
	c.SourceMemoryID = sourceMemoryID.String
	c.Embedding = fromVector(embedding)
	if retractedAt.Valid {
		c.RetractedAt = &retractedAt.Time
	}
	c.RetractReason = retractReason.String

	v.Status = model.SlotStatus(status)
	v.ReplacedByClaimID = replacedBy.String
	v.ActiveClaim = &c
	return v, nil
}
