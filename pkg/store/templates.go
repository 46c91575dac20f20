package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/k14s/difflib"
)

// TemplateInfo holds a stored template and its metadata.
type TemplateInfo struct {
	Id        int
	Name      string
	Content   string
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VersionInfo holds a single historical revision of a template.
type VersionInfo struct {
	Version int
	Content string
	SavedAt time.Time
}

// Save persists a template under the given name. If the name is new, the
// template is created at version 1. If it already exists, the current content
// is archived to the version history and the version number is bumped. Saving
// identical content over itself is a no-op. The operation is performed within
// a transaction.
func (s *Store) Save(ctx context.Context, name, content string) (TemplateInfo, error) {
	if name == "" {
		return TemplateInfo{}, errors.New("template name must not be empty")
	}

	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TemplateInfo{}, fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	existing, err := s.getTx(ctx, tx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		res, err := tx.StmtContext(ctx, s.stmtInsertTemplate).ExecContext(ctx, name, content, now.Unix(), now.Unix())
		if err != nil {
			return TemplateInfo{}, fmt.Errorf("failed to insert template %q: %w", name, err)
		}
		newID, _ := res.LastInsertId()

		s.logger.InfoContext(ctx, "Template created",
			slog.String("template_name", name),
			slog.Int64("template_id", newID),
		)

		if err = tx.Commit(); err != nil {
			return TemplateInfo{}, err
		}
		return TemplateInfo{
			Id:        int(newID),
			Name:      name,
			Content:   content,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil

	case err != nil:
		return TemplateInfo{}, err
	}

	if existing.Content == content {
		return existing, tx.Commit()
	}

	_, err = tx.StmtContext(ctx, s.stmtArchiveVersion).ExecContext(ctx, existing.Id, existing.Version, existing.Content, now.Unix())
	if err != nil {
		return TemplateInfo{}, fmt.Errorf("failed to archive version %d of %q: %w", existing.Version, name, err)
	}

	_, err = tx.StmtContext(ctx, s.stmtUpdateTemplate).ExecContext(ctx, content, now.Unix(), existing.Id)
	if err != nil {
		return TemplateInfo{}, fmt.Errorf("failed to update template %q: %w", name, err)
	}

	s.logger.InfoContext(ctx, "Template updated",
		slog.String("template_name", name),
		slog.Int("template_id", existing.Id),
		slog.Int("new_version", existing.Version+1),
	)

	if err = tx.Commit(); err != nil {
		return TemplateInfo{}, err
	}

	existing.Content = content
	existing.Version++
	existing.UpdatedAt = now
	return existing, nil
}

// Get retrieves the current revision of a template by name.
func (s *Store) Get(ctx context.Context, name string) (TemplateInfo, error) {
	var (
		info               TemplateInfo
		createdAt, updated int64
	)
	err := s.stmtGetTemplate.QueryRowContext(ctx, name).Scan(&info.Id, &info.Name, &info.Content, &info.Version, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return TemplateInfo{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return TemplateInfo{}, err
	}
	info.CreatedAt = time.Unix(createdAt, 0)
	info.UpdatedAt = time.Unix(updated, 0)
	return info, nil
}

// getTx is Get executed inside an open transaction.
func (s *Store) getTx(ctx context.Context, tx *sql.Tx, name string) (TemplateInfo, error) {
	var (
		info               TemplateInfo
		createdAt, updated int64
	)
	err := tx.StmtContext(ctx, s.stmtGetTemplate).QueryRowContext(ctx, name).Scan(&info.Id, &info.Name, &info.Content, &info.Version, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return TemplateInfo{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return TemplateInfo{}, err
	}
	info.CreatedAt = time.Unix(createdAt, 0)
	info.UpdatedAt = time.Unix(updated, 0)
	return info, nil
}

// List retrieves all stored templates ordered by name.
func (s *Store) List(ctx context.Context) ([]TemplateInfo, error) {
	rows, err := s.stmtListTemplates.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var infos []TemplateInfo
	for rows.Next() {
		var (
			info               TemplateInfo
			createdAt, updated int64
		)
		if err = rows.Scan(&info.Id, &info.Name, &info.Content, &info.Version, &createdAt, &updated); err != nil {
			return nil, err
		}
		info.CreatedAt = time.Unix(createdAt, 0)
		info.UpdatedAt = time.Unix(updated, 0)
		infos = append(infos, info)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return infos, nil
}

// Delete removes a template, its version history, and its render statistics.
// The operation is performed within a transaction.
func (s *Store) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for delete: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	info, err := s.getTx(ctx, tx, name)
	if err != nil {
		return err
	}

	if _, err = tx.StmtContext(ctx, s.stmtDeleteVersions).ExecContext(ctx, info.Id); err != nil {
		return fmt.Errorf("failed to remove version history for template %d: %w", info.Id, err)
	}

	if _, err = tx.StmtContext(ctx, s.stmtDeleteStats).ExecContext(ctx, info.Id); err != nil {
		return fmt.Errorf("failed to remove stats for template %d: %w", info.Id, err)
	}

	if _, err = tx.StmtContext(ctx, s.stmtDeleteTemplate).ExecContext(ctx, info.Id); err != nil {
		return fmt.Errorf("failed to remove template %d: %w", info.Id, err)
	}

	s.logger.InfoContext(ctx, "Template removed",
		slog.String("template_name", name),
		slog.Int("template_id", info.Id),
	)

	return tx.Commit()
}

// Versions returns the full revision history of a template, oldest first.
// The current revision is included as the last entry.
func (s *Store) Versions(ctx context.Context, name string) ([]VersionInfo, error) {
	info, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.stmtListVersions.QueryContext(ctx, info.Id)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var versions []VersionInfo
	for rows.Next() {
		var (
			v       VersionInfo
			savedAt int64
		)
		if err = rows.Scan(&v.Version, &v.Content, &savedAt); err != nil {
			return nil, err
		}
		v.SavedAt = time.Unix(savedAt, 0)
		versions = append(versions, v)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	versions = append(versions, VersionInfo{
		Version: info.Version,
		Content: info.Content,
		SavedAt: info.UpdatedAt,
	})
	return versions, nil
}

// GetVersion retrieves one specific revision of a template. The current
// version is served from the templates table, older ones from the archive.
func (s *Store) GetVersion(ctx context.Context, name string, version int) (VersionInfo, error) {
	info, err := s.Get(ctx, name)
	if err != nil {
		return VersionInfo{}, err
	}
	if version == info.Version {
		return VersionInfo{
			Version: info.Version,
			Content: info.Content,
			SavedAt: info.UpdatedAt,
		}, nil
	}

	var (
		v       VersionInfo
		savedAt int64
	)
	err = s.stmtGetVersion.QueryRowContext(ctx, info.Id, version).Scan(&v.Version, &v.Content, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return VersionInfo{}, fmt.Errorf("%w: %q has no version %d", ErrNotFound, name, version)
	}
	if err != nil {
		return VersionInfo{}, err
	}
	v.SavedAt = time.Unix(savedAt, 0)
	return v, nil
}

// DiffVersions returns a pretty-printed line diff between two revisions of a
// template.
func (s *Store) DiffVersions(ctx context.Context, name string, from, to int) (string, error) {
	older, err := s.GetVersion(ctx, name, from)
	if err != nil {
		return "", err
	}
	newer, err := s.GetVersion(ctx, name, to)
	if err != nil {
		return "", err
	}
	return difflib.PPDiff(strings.Split(older.Content, "\n"), strings.Split(newer.Content, "\n")), nil
}
