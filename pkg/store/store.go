package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrNotFound is returned when a named template (or one of its versions)
// does not exist in the database.
var ErrNotFound = errors.New("template not found")

// SetupSchema initializes the tables used by the template store. This function
// should be called once on a new database before any other operations are
// performed. It is idempotent and safe to call on an already-initialized
// database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaTemplates = `
CREATE TABLE IF NOT EXISTS templates (
    template_id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`
		schemaVersions = `
CREATE TABLE IF NOT EXISTS template_versions (
    template_id INTEGER NOT NULL,
    version INTEGER NOT NULL,
    content TEXT NOT NULL,
    saved_at INTEGER NOT NULL,
    PRIMARY KEY (template_id, version)
);
`
		schemaStats = `
CREATE TABLE IF NOT EXISTS render_stats (
    template_id INTEGER PRIMARY KEY,
    render_count INTEGER NOT NULL DEFAULT 0,
    error_count INTEGER NOT NULL DEFAULT 0,
    total_duration_us INTEGER NOT NULL DEFAULT 0,
    total_bytes INTEGER NOT NULL DEFAULT 0,
    last_render_id TEXT NOT NULL DEFAULT '',
    last_rendered_at INTEGER NOT NULL DEFAULT 0
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing. If it fails, this will clean up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaTemplates); err != nil {
		return fmt.Errorf("could not create templates schema: %w", err)
	}

	if _, err = tx.Exec(schemaVersions); err != nil {
		return fmt.Errorf("could not create versions schema: %w", err)
	}

	if _, err = tx.Exec(schemaStats); err != nil {
		return fmt.Errorf("could not create stats schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store is the main entry point for persisting templates. It holds the
// database connection and prepared SQL statements for efficient access.
type Store struct {
	db                 *sql.DB
	stmtGetTemplate    *sql.Stmt
	stmtListTemplates  *sql.Stmt
	stmtInsertTemplate *sql.Stmt
	stmtUpdateTemplate *sql.Stmt
	stmtDeleteTemplate *sql.Stmt
	stmtArchiveVersion *sql.Stmt
	stmtListVersions   *sql.Stmt
	stmtGetVersion     *sql.Stmt
	stmtDeleteVersions *sql.Stmt
	stmtUpsertStats    *sql.Stmt
	stmtListStats      *sql.Stmt
	stmtDeleteStats    *sql.Stmt
	logger             *slog.Logger
}

// NewStore creates and returns a new Store backed by the given database
// connection. It pre-compiles all necessary SQL statements, returning an
// error if any preparation fails. SetupSchema must have been run first.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGetTemplate, err := db.Prepare(`SELECT template_id, name, content, version, created_at, updated_at FROM templates WHERE name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtListTemplates, err := db.Prepare(`SELECT template_id, name, content, version, created_at, updated_at FROM templates ORDER BY name;`)
	if err != nil {
		return nil, err
	}

	stmtInsertTemplate, err := db.Prepare(`INSERT INTO templates (name, content, version, created_at, updated_at) VALUES (?, ?, 1, ?, ?);`)
	if err != nil {
		return nil, err
	}

	stmtUpdateTemplate, err := db.Prepare(`UPDATE templates SET content = ?, version = version + 1, updated_at = ? WHERE template_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtDeleteTemplate, err := db.Prepare(`DELETE FROM templates WHERE template_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtArchiveVersion, err := db.Prepare(`INSERT INTO template_versions (template_id, version, content, saved_at) VALUES (?, ?, ?, ?);`)
	if err != nil {
		return nil, err
	}

	stmtListVersions, err := db.Prepare(`SELECT version, content, saved_at FROM template_versions WHERE template_id = ? ORDER BY version;`)
	if err != nil {
		return nil, err
	}

	stmtGetVersion, err := db.Prepare(`SELECT version, content, saved_at FROM template_versions WHERE template_id = ? AND version = ?;`)
	if err != nil {
		return nil, err
	}

	stmtDeleteVersions, err := db.Prepare(`DELETE FROM template_versions WHERE template_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtUpsertStats, err := db.Prepare(`
INSERT INTO render_stats (template_id, render_count, error_count, total_duration_us, total_bytes, last_render_id, last_rendered_at)
VALUES (?, 1, ?, ?, ?, ?, ?)
ON CONFLICT(template_id) DO UPDATE SET
    render_count = render_count + 1,
    error_count = error_count + excluded.error_count,
    total_duration_us = total_duration_us + excluded.total_duration_us,
    total_bytes = total_bytes + excluded.total_bytes,
    last_render_id = excluded.last_render_id,
    last_rendered_at = excluded.last_rendered_at;`)
	if err != nil {
		return nil, err
	}

	stmtListStats, err := db.Prepare(`
SELECT t.name, s.render_count, s.error_count, s.total_duration_us, s.total_bytes, s.last_render_id, s.last_rendered_at
FROM render_stats s JOIN templates t ON t.template_id = s.template_id
ORDER BY t.name;`)
	if err != nil {
		return nil, err
	}

	stmtDeleteStats, err := db.Prepare(`DELETE FROM render_stats WHERE template_id = ?;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:                 db,
		stmtGetTemplate:    stmtGetTemplate,
		stmtListTemplates:  stmtListTemplates,
		stmtInsertTemplate: stmtInsertTemplate,
		stmtUpdateTemplate: stmtUpdateTemplate,
		stmtDeleteTemplate: stmtDeleteTemplate,
		stmtArchiveVersion: stmtArchiveVersion,
		stmtListVersions:   stmtListVersions,
		stmtGetVersion:     stmtGetVersion,
		stmtDeleteVersions: stmtDeleteVersions,
		stmtUpsertStats:    stmtUpsertStats,
		stmtListStats:      stmtListStats,
		stmtDeleteStats:    stmtDeleteStats,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared SQL statements held by the Store. It should be
// called when the Store is no longer needed to free up database resources.
func (s *Store) Close() {
	_ = s.stmtGetTemplate.Close()
	_ = s.stmtListTemplates.Close()
	_ = s.stmtInsertTemplate.Close()
	_ = s.stmtUpdateTemplate.Close()
	_ = s.stmtDeleteTemplate.Close()
	_ = s.stmtArchiveVersion.Close()
	_ = s.stmtListVersions.Close()
	_ = s.stmtGetVersion.Close()
	_ = s.stmtDeleteVersions.Close()
	_ = s.stmtUpsertStats.Close()
	_ = s.stmtListStats.Close()
	_ = s.stmtDeleteStats.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}
