package postgres

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/mnexium/memory-substrate/internal/storage"
)

// Store implements storage.Facade against PostgreSQL.
type Store struct {
	db                *sql.DB
	pgvectorAvailable bool
}

var _ storage.Facade = (*Store)(nil)

// Open connects to dsn, best-effort enables pgvector, then applies the
// idempotent schema and migrations. The schema declares vector columns, so
// Open returns an error when the extension cannot be enabled; the pgvector
// index migration runs only when the extension was enabled.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{db: db}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("postgres: pgvector extension not available, similarity search disabled: %v", err)
		s.pgvectorAvailable = false
	} else {
		s.pgvectorAvailable = true
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}

	if _, err := db.Exec(MigrationFTS); err != nil {
		log.Printf("postgres: failed to apply full-text search migration: %v", err)
	}

	if s.pgvectorAvailable {
		if _, err := db.Exec(MigrationPgvector); err != nil {
			log.Printf("postgres: failed to apply pgvector index migration: %v", err)
		}
	}

	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
