// Package postgres implements the storage facade (internal/storage) against
// PostgreSQL using database/sql, lib/pq, and pgvector-go.
package postgres

// Schema contains the idempotent DDL for the memory and claim substrate.
// Mirrors the teacher's CREATE TABLE IF NOT EXISTS style so re-applying on
// every boot is safe.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
    id                  TEXT PRIMARY KEY,
    project_id          TEXT NOT NULL,
    subject_id          TEXT NOT NULL,
    text                TEXT NOT NULL,
    kind                TEXT NOT NULL DEFAULT 'fact',
    visibility          TEXT NOT NULL DEFAULT 'private',
    importance          INTEGER NOT NULL DEFAULT 50,
    confidence          REAL NOT NULL DEFAULT 0.95,
    is_temporal         BOOLEAN NOT NULL DEFAULT false,
    tags                JSONB,
    metadata            JSONB,
    embedding           vector,
    status              TEXT NOT NULL DEFAULT 'active',
    superseded_by       TEXT,
    is_deleted          BOOLEAN NOT NULL DEFAULT false,
    source_type         TEXT NOT NULL DEFAULT 'explicit',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_reinforced_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_memories_project_subject ON memories(project_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(status);
CREATE INDEX IF NOT EXISTS idx_memories_is_deleted ON memories(is_deleted);

CREATE TABLE IF NOT EXISTS claims (
    claim_id         TEXT PRIMARY KEY,
    project_id       TEXT NOT NULL,
    subject_id       TEXT NOT NULL,
    predicate        TEXT NOT NULL,
    object_value     TEXT NOT NULL,
    slot             TEXT NOT NULL,
    claim_type       TEXT NOT NULL DEFAULT 'fact',
    confidence       REAL NOT NULL DEFAULT 0.8,
    importance       REAL NOT NULL DEFAULT 0.5,
    tags             JSONB,
    source_memory_id TEXT,
    subject_entity   TEXT NOT NULL DEFAULT 'self',
    status           TEXT NOT NULL DEFAULT 'active',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    valid_from       TIMESTAMPTZ,
    valid_until      TIMESTAMPTZ,
    embedding        vector,
    retracted_at     TIMESTAMPTZ,
    retract_reason   TEXT
);

CREATE INDEX IF NOT EXISTS idx_claims_project_subject_slot ON claims(project_id, subject_id, slot);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);

CREATE TABLE IF NOT EXISTS claim_assertions (
    assertion_id  TEXT PRIMARY KEY,
    claim_id      TEXT NOT NULL REFERENCES claims(claim_id) ON DELETE CASCADE,
    memory_id     TEXT,
    object_type   TEXT NOT NULL DEFAULT 'string',
    value_string  TEXT,
    value_number  REAL,
    value_date    TIMESTAMPTZ,
    value_json    JSONB,
    confidence    REAL NOT NULL DEFAULT 0.8,
    status        TEXT NOT NULL DEFAULT 'active',
    first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_claim_assertions_claim ON claim_assertions(claim_id);

CREATE TABLE IF NOT EXISTS claim_edges (
    edge_id     TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL,
    from_claim  TEXT NOT NULL,
    to_claim    TEXT NOT NULL,
    edge_type   TEXT NOT NULL,
    weight      REAL NOT NULL DEFAULT 1.0,
    reason_code TEXT,
    reason_text TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE(project_id, from_claim, to_claim, edge_type)
);

CREATE INDEX IF NOT EXISTS idx_claim_edges_from ON claim_edges(from_claim);
CREATE INDEX IF NOT EXISTS idx_claim_edges_to ON claim_edges(to_claim);

CREATE TABLE IF NOT EXISTS slot_state (
    project_id           TEXT NOT NULL,
    subject_id           TEXT NOT NULL,
    slot                 TEXT NOT NULL,
    active_claim_id      TEXT,
    status               TEXT NOT NULL DEFAULT 'active',
    replaced_by_claim_id TEXT,
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (project_id, subject_id, slot)
);

CREATE TABLE IF NOT EXISTS memory_recall_events (
    id           TEXT PRIMARY KEY,
    project_id   TEXT NOT NULL,
    subject_id   TEXT NOT NULL,
    chat_id      TEXT,
    memory_id    TEXT NOT NULL,
    message_idx  INTEGER NOT NULL DEFAULT 0,
    similarity   REAL NOT NULL DEFAULT 0,
    request_type TEXT,
    model_id     TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recall_events_chat ON memory_recall_events(chat_id, created_at);
CREATE INDEX IF NOT EXISTS idx_recall_events_memory ON memory_recall_events(memory_id, created_at DESC);
`

// MigrationFTS adds tsvector full-text search to the memories table, same
// trigger-based approach as the teacher's schema migration.
const MigrationFTS = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'memories' AND column_name = 'text_tsv'
    ) THEN
        ALTER TABLE memories ADD COLUMN text_tsv tsvector;
    END IF;
END
$$;

UPDATE memories SET text_tsv = to_tsvector('english', text) WHERE text_tsv IS NULL;

CREATE INDEX IF NOT EXISTS idx_memories_text_tsv ON memories USING GIN(text_tsv);

CREATE OR REPLACE FUNCTION memories_tsv_update()
RETURNS TRIGGER AS $$
BEGIN
    NEW.text_tsv := to_tsvector('english', COALESCE(NEW.text, ''));
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS memories_tsv_trigger ON memories;
CREATE TRIGGER memories_tsv_trigger
    BEFORE INSERT OR UPDATE OF text
    ON memories
    FOR EACH ROW
    EXECUTE FUNCTION memories_tsv_update();
`

// MigrationPgvector adds ivfflat cosine indexes once the vector extension is
// confirmed present. Only applied when pgvectorAvailable is true.
const MigrationPgvector = `
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_memories_embedding_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM memories LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_memories_embedding_cosine ON memories USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;

DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_claims_embedding_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM claims LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_claims_embedding_cosine ON claims USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`
