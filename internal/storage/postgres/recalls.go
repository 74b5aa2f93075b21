package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mnexium/memory-substrate/internal/storage"
	"github.com/mnexium/memory-substrate/pkg/ids"
	"github.com/mnexium/memory-substrate/pkg/model"
)

var _ storage.RecallFacade = (*Store)(nil)

func (s *Store) RecordRecall(ctx context.Context, e *model.MemoryRecallEvent) error {
	if e == nil || e.ProjectID == "" || e.SubjectID == "" || e.MemoryID == "" {
		return fmt.Errorf("%w: project_id, subject_id and memory_id are required", storage.ErrInvalidInput)
	}
	if e.ID == "" {
		e.ID = ids.New("rec")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_recall_events (id, project_id, subject_id, chat_id, memory_id, message_idx, similarity, request_type, model_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, e.ID, e.ProjectID, e.SubjectID, nullIfEmpty(e.ChatID), e.MemoryID, e.MessageIdx, e.Similarity,
		nullIfEmpty(e.RequestType), nullIfEmpty(e.ModelID), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: record recall: %w", err)
	}
	return nil
}

func (s *Store) ListRecallsByChat(ctx context.Context, projectID, chatID string) ([]model.MemoryRecallEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, subject_id, chat_id, memory_id, message_idx, similarity, request_type, model_id, created_at
		FROM memory_recall_events WHERE project_id=$1 AND chat_id=$2 ORDER BY created_at ASC
	`, projectID, chatID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recalls by chat: %w", err)
	}
	defer rows.Close()
	return scanRecallEvents(rows)
}

func (s *Store) ListRecallsByMemory(ctx context.Context, projectID, memoryID string, limit int) ([]model.MemoryRecallEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, subject_id, chat_id, memory_id, message_idx, similarity, request_type, model_id, created_at
		FROM memory_recall_events WHERE project_id=$1 AND memory_id=$2 ORDER BY created_at DESC LIMIT $3
	`, projectID, memoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recalls by memory: %w", err)
	}
	defer rows.Close()
	return scanRecallEvents(rows)
}

func (s *Store) RecallStats(ctx context.Context, projectID string) (storage.RecallStats, error) {
	var stats storage.RecallStats
	var avg sql.NullFloat64
	var minTS, maxTS sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT chat_id), COUNT(DISTINCT subject_id),
		       AVG(similarity), MIN(created_at), MAX(created_at)
		FROM memory_recall_events WHERE project_id = $1
	`, projectID).Scan(&stats.Count, &stats.DistinctChats, &stats.DistinctSubjects, &avg, &minTS, &maxTS)
	if err != nil {
		return storage.RecallStats{}, fmt.Errorf("postgres: recall stats: %w", err)
	}

	stats.AvgScore = avg.Float64
	if minTS.Valid {
		stats.MinTimestamp = &minTS.Time
	}
	if maxTS.Valid {
		stats.MaxTimestamp = &maxTS.Time
	}
	return stats, nil
}

func scanRecallEvents(rows *sql.Rows) ([]model.MemoryRecallEvent, error) {
	var out []model.MemoryRecallEvent
	for rows.Next() {
		var e model.MemoryRecallEvent
		var chatID, requestType, modelID sql.NullString
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.SubjectID, &chatID, &e.MemoryID,
			&e.MessageIdx, &e.Similarity, &requestType, &modelID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ChatID, e.RequestType, e.ModelID = chatID.String, requestType.String, modelID.String
		out = append(out, e)
	}
	return out, rows.Err()
}
