// Package cache persists a manifest of completed generation runs.
//
// SQLite via sqlx holds one row per run: the rule-set hash, the output hash,
// and a UUIDv7 run id. The generate command consults it to skip recompiling
// a rule set whose output is already on disk and unchanged. Named queries
// are managed by dotsql from embedded .sql files.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/solatis/ruleforge/internal/types"
)

// Generation is one recorded run of the generator.
type Generation struct {
	RunID       string `db:"run_id"`
	RuleSetHash string `db:"rule_set_hash"`
	OutputHash  string `db:"output_hash"`
	CreatedAt   string `db:"created_at"`
}

// Manifest is an open generation-manifest database.
type Manifest struct {
	db      *sqlx.DB
	queries *Queries
}

// Open opens (creating if needed) the manifest database at path and
// ensures the schema exists.
func Open(path string) (*Manifest, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping manifest database: %w", err)
	}

	queries, err := LoadQueries(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	if _, err := queries.Exec("create-generations-table"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Manifest{db: db, queries: queries}, nil
}

// Close releases the underlying database handle.
func (m *Manifest) Close() error {
	return m.db.Close()
}

// Lookup returns the most recent generation recorded for a rule-set hash,
// or false when none exists.
func (m *Manifest) Lookup(ruleSetHash string) (Generation, bool, error) {
	var g Generation
	err := m.queries.Get("latest-generation", &g, ruleSetHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Generation{}, false, nil
		}
		return Generation{}, false, fmt.Errorf("failed to query manifest: %w", err)
	}
	return g, true, nil
}

// Record stores a completed generation run.
func (m *Manifest) Record(runID types.RunID, ruleSetHash, outputHash string) error {
	createdAt := time.Now().UTC().Format(time.RFC3339)
	if _, err := m.queries.Exec("insert-generation", string(runID), ruleSetHash, outputHash, createdAt); err != nil {
		return fmt.Errorf("failed to record generation: %w", err)
	}
	return nil
}

// History returns all recorded generations, newest first.
func (m *Manifest) History() ([]Generation, error) {
	var gens []Generation
	if err := m.queries.Select("list-generations", &gens); err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	return gens, nil
}
