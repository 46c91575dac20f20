package main

import (
	"log/slog"
	"net/http"

	"github.com/weftlang/weft/pkg/store"
)

// StatsAPI holds the dependencies for the render statistics handlers.
type StatsAPI struct {
	ts     *store.Store
	logger *slog.Logger
}

func NewStatsAPI(ts *store.Store, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		ts:     ts,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats", s.handleStats)
}

// TemplateStatsSummary is the JSON shape of one template's accumulated
// render counters.
type TemplateStatsSummary struct {
	Name           string `json:"name"`
	RenderCount    int64  `json:"render_count"`
	ErrorCount     int64  `json:"error_count"`
	TotalDurationM int64  `json:"total_duration_ms"`
	TotalBytes     int64  `json:"total_bytes"`
	LastRenderID   string `json:"last_render_id"`
	LastRenderedAt int64  `json:"last_rendered_at"`
}

// handleStats serves the accumulated render statistics and allows resetting
// them.
func (s *StatsAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !hasScope(r, "stats:read") {
			respondWithError(w, http.StatusForbidden, "Forbidden: requires 'stats:read' scope")
			return
		}

		stats, err := s.ts.GetStats(r.Context())
		if err != nil {
			s.logger.Error("Failed to query render stats", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Database query failed")
			return
		}

		summaries := make([]TemplateStatsSummary, 0, len(stats))
		for _, st := range stats {
			summaries = append(summaries, TemplateStatsSummary{
				Name:           st.Name,
				RenderCount:    st.RenderCount,
				ErrorCount:     st.ErrorCount,
				TotalDurationM: st.TotalDuration.Milliseconds(),
				TotalBytes:     st.TotalBytes,
				LastRenderID:   st.LastRenderID,
				LastRenderedAt: st.LastRenderedAt.Unix(),
			})
		}
		respondWithJSON(w, http.StatusOK, summaries)

	case http.MethodDelete:
		if !hasScope(r, "server:control") {
			respondWithError(w, http.StatusForbidden, "Forbidden: requires 'server:control' scope")
			return
		}

		if err := s.ts.ResetStats(r.Context()); err != nil {
			s.logger.Error("Failed to reset render stats", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to reset stats")
			return
		}
		s.logger.Info("Render stats reset via API")
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
