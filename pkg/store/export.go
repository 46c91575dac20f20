package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

// ExportedStore is the serializable representation of the full template
// store, used for JSON-based import and export.
type ExportedStore struct {
	Templates []ExportedTemplate `json:"templates"`
}

// ExportedTemplate is the serializable representation of one template and
// its revision history.
type ExportedTemplate struct {
	Name     string            `json:"name"`
	Content  string            `json:"content"`
	Version  int               `json:"version"`
	History  []ExportedVersion `json:"history,omitempty"`
	Modified int64             `json:"modified"`
}

// ExportedVersion is one archived revision inside an ExportedTemplate.
type ExportedVersion struct {
	Version int    `json:"version"`
	Content string `json:"content"`
	SavedAt int64  `json:"saved_at"`
}

// ExportJSON serializes every template, including version history, into a
// JSON document written to w. This is useful for backups or for transferring
// templates between instances.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer) error {
	infos, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("could not list templates for export: %w", err)
	}

	exported := ExportedStore{Templates: make([]ExportedTemplate, 0, len(infos))}
	historyCount := 0
	for _, info := range infos {
		et := ExportedTemplate{
			Name:     info.Name,
			Content:  info.Content,
			Version:  info.Version,
			Modified: info.UpdatedAt.Unix(),
		}

		rows, err := s.stmtListVersions.QueryContext(ctx, info.Id)
		if err != nil {
			return fmt.Errorf("could not query history for export: %w", err)
		}
		for rows.Next() {
			var ev ExportedVersion
			if err = rows.Scan(&ev.Version, &ev.Content, &ev.SavedAt); err != nil {
				_ = rows.Close()
				return err
			}
			et.History = append(et.History, ev)
		}
		if err = rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		historyCount += len(et.History)
		exported.Templates = append(exported.Templates, et)
	}

	s.logger.InfoContext(ctx, "Templates exported",
		slog.Int("templates_exported", len(exported.Templates)),
		slog.Int("history_entries_exported", historyCount),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// ImportJSON reads a JSON export from r and merges it into the store. A
// template whose name is not yet present is created with its exported
// content and history. A template that already exists has the imported
// content saved as a new revision on top of its current one, with the local
// history preserved. The entire operation is transactional.
func (s *Store) ImportJSON(ctx context.Context, r io.Reader) error {
	var imported ExportedStore
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return fmt.Errorf("failed to decode json export: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for import: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	now := time.Now().Unix()
	created, updated := 0, 0

	for _, et := range imported.Templates {
		if et.Name == "" {
			return fmt.Errorf("import consistency error: template with empty name")
		}

		var existingID, existingVersion int
		var existingContent string
		err = tx.QueryRowContext(ctx, "SELECT template_id, version, content FROM templates WHERE name = ?", et.Name).
			Scan(&existingID, &existingVersion, &existingContent)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			version := et.Version
			if version < 1 {
				version = 1
			}
			res, err := tx.ExecContext(ctx,
				"INSERT INTO templates (name, content, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
				et.Name, et.Content, version, now, now)
			if err != nil {
				return fmt.Errorf("failed to insert template %q: %w", et.Name, err)
			}
			newID, _ := res.LastInsertId()
			for _, ev := range et.History {
				if ev.Version >= version {
					return fmt.Errorf("import consistency error: %q history version %d not below current %d", et.Name, ev.Version, version)
				}
				_, err = tx.ExecContext(ctx,
					"INSERT INTO template_versions (template_id, version, content, saved_at) VALUES (?, ?, ?, ?)",
					newID, ev.Version, ev.Content, ev.SavedAt)
				if err != nil {
					return fmt.Errorf("failed to insert history for %q: %w", et.Name, err)
				}
			}
			created++

		case err != nil:
			return fmt.Errorf("failed to query for template %q: %w", et.Name, err)

		default:
			if existingContent == et.Content {
				continue
			}
			_, err = tx.ExecContext(ctx,
				"INSERT INTO template_versions (template_id, version, content, saved_at) VALUES (?, ?, ?, ?)",
				existingID, existingVersion, existingContent, now)
			if err != nil {
				return fmt.Errorf("failed to archive current version of %q: %w", et.Name, err)
			}
			_, err = tx.ExecContext(ctx,
				"UPDATE templates SET content = ?, version = version + 1, updated_at = ? WHERE template_id = ?",
				et.Content, now, existingID)
			if err != nil {
				return fmt.Errorf("failed to update template %q: %w", et.Name, err)
			}
			updated++
		}
	}

	s.logger.InfoContext(ctx, "Templates imported successfully",
		slog.Int("templates_created", created),
		slog.Int("templates_updated", updated),
	)

	return tx.Commit()
}

// ExportToDir writes the current revision of every template to a file in
// dir, named after the template. Files are written atomically so a crash
// mid-export never leaves a half-written template on disk.
func (s *Store) ExportToDir(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create export directory: %w", err)
	}

	infos, err := s.List(ctx)
	if err != nil {
		return err
	}

	for _, info := range infos {
		name := filepath.Base(info.Name)
		if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, "..") {
			return fmt.Errorf("refusing to export template with unsafe name %q", info.Name)
		}
		path := filepath.Join(dir, name)
		if err := atomic.WriteFile(path, bytes.NewReader([]byte(info.Content))); err != nil {
			return fmt.Errorf("failed to write template %q: %w", info.Name, err)
		}
	}

	s.logger.InfoContext(ctx, "Templates exported to directory",
		slog.String("dir", dir),
		slog.Int("templates_written", len(infos)),
	)

	return nil
}
