package checkpoint

import (
	"encoding/json"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// sqlIndex is the optional secondary catalog described in SPEC_FULL.md's
// domain-stack wiring: a queryable mirror of checkpoint metadata, kept
// alongside the authoritative file store rather than in place of it.
type sqlIndex struct {
	db *sqlx.DB
}

func newSQLIndex(dsn string) (*sqlIndex, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			progress DOUBLE PRECISION NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			metadata JSONB
		)
	`); err != nil {
		db.Close()
		return nil, err
	}
	return &sqlIndex{db: db}, nil
}

func (i *sqlIndex) insert(c Checkpoint) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}
	_, err = i.db.Exec(
		`INSERT INTO checkpoints (id, operation, progress, timestamp, metadata) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.Operation, c.Progress, c.Timestamp, metadata,
	)
	return err
}

func (i *sqlIndex) close() error {
	return i.db.Close()
}
