package postgres

import (
	"database/sql"
	"encoding/json"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/mnexium/memory-substrate/pkg/model"
)

const memoryColumns = `
	id, project_id, subject_id, text, kind, visibility, importance, confidence,
	is_temporal, tags, metadata, embedding, status, superseded_by, is_deleted,
	source_type, created_at, updated_at, last_reinforced_at
`

// rowScanner matches both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(r rowScanner) (model.Memory, error) {
	var m model.Memory
	var tagsJSON, metaJSON []byte
	var embedding pgvector.Vector
	var supersededBy sql.NullString

	err := r.Scan(
		&m.ID, &m.ProjectID, &m.SubjectID, &m.Text, &m.Kind, &m.Visibility,
		&m.Importance, &m.Confidence, &m.IsTemporal, &tagsJSON, &metaJSON,
		&embedding, &m.Status, &supersededBy, &m.IsDeleted, &m.SourceType,
		&m.CreatedAt, &m.UpdatedAt, &m.LastReinforcedAt,
	)
	if err != nil {
		return model.Memory{}, err
	}

	if len(tagsJSON) > 0 {
		_ = json.Unmarshal(tagsJSON, &m.Tags)
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &m.Metadata)
	}
	m.Embedding = fromVector(embedding)
	m.SupersededBy = supersededBy.String

	return m, nil
}

func toVector(embedding []float64) pgvector.Vector {
	f32 := make([]float32, len(embedding))
	for i, v := range embedding {
		f32[i] = float32(v)
	}
	return pgvector.NewVector(f32)
}

func fromVector(v pgvector.Vector) []float64 {
	f32 := v.Slice()
	if len(f32) == 0 {
		return nil
	}
	out := make([]float64, len(f32))
	for i, v := range f32 {
		out[i] = float64(v)
	}
	return out
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
