package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// TemplateStats holds accumulated render statistics for a single template.
type TemplateStats struct {
	Name           string
	RenderCount    int64
	ErrorCount     int64
	TotalDuration  time.Duration
	TotalBytes     int64
	LastRenderID   string
	LastRenderedAt time.Time
}

// RecordRender accumulates one render of a stored template into its stats
// row and returns the unique ID assigned to the render. Renders of templates
// that are not in the store cannot be recorded.
func (s *Store) RecordRender(ctx context.Context, name string, duration time.Duration, bytes int64, failed bool) (string, error) {
	info, err := s.Get(ctx, name)
	if err != nil {
		return "", err
	}

	renderID := uuid.New().String()
	errCount := 0
	if failed {
		errCount = 1
	}

	_, err = s.stmtUpsertStats.ExecContext(ctx, info.Id, errCount, duration.Microseconds(), bytes, renderID, time.Now().Unix())
	if err != nil {
		return "", err
	}
	return renderID, nil
}

// GetStats returns the render statistics for every template that has been
// rendered at least once, ordered by template name.
func (s *Store) GetStats(ctx context.Context) ([]TemplateStats, error) {
	rows, err := s.stmtListStats.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var all []TemplateStats
	for rows.Next() {
		var (
			st         TemplateStats
			durationUs int64
			lastAt     int64
		)
		if err = rows.Scan(&st.Name, &st.RenderCount, &st.ErrorCount, &durationUs, &st.TotalBytes, &st.LastRenderID, &lastAt); err != nil {
			return nil, err
		}
		st.TotalDuration = time.Duration(durationUs) * time.Microsecond
		st.LastRenderedAt = time.Unix(lastAt, 0)
		all = append(all, st)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return all, nil
}

// ResetStats clears the accumulated render statistics for all templates.
func (s *Store) ResetStats(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM render_stats")
	return err
}
