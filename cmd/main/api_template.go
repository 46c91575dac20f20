package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/weftlang/weft/pkg/store"
	"github.com/weftlang/weft/pkg/templating"
)

// TemplateAPI holds the dependencies for the template API handlers. The
// store is the source of truth; the template directory is a materialized
// view of it that the manager loads from.
type TemplateAPI struct {
	ts          *store.Store
	tm          *templating.TemplateManager
	templateDir string
	logger      *slog.Logger
}

// NewTemplateAPI creates a new instance of the TemplateAPI.
func NewTemplateAPI(ts *store.Store, tm *templating.TemplateManager, templateDir string, logger *slog.Logger) *TemplateAPI {
	return &TemplateAPI{
		ts:          ts,
		tm:          tm,
		templateDir: templateDir,
		logger:      logger,
	}
}

// RegisterRoutes sets up the routing for all /api/templates endpoints.
func (t *TemplateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/templates/refresh", t.handleRefresh)
	mux.HandleFunc("/api/templates/check", t.handleCheck)
	mux.HandleFunc("/api/templates/preview", t.handlePreview)
	mux.HandleFunc("/api/templates/export", t.handleExport)
	mux.HandleFunc("/api/templates/import", t.handleImport)
	mux.HandleFunc("/api/templates", t.handleList)
	mux.HandleFunc("/api/templates/", t.handleItem)
}

// TemplateSummary is the structure returned when listing templates.
type TemplateSummary struct {
	Name      string `json:"name"`
	Version   int    `json:"version"`
	UpdatedAt int64  `json:"updated_at"`
}

// PreviewRequest is the expected JSON body for rendering an unsaved template.
type PreviewRequest struct {
	Content string         `json:"content"`
	Data    map[string]any `json:"data"`
}

// validTemplateName rejects names that could escape the template directory
// or that the manager would never load.
func validTemplateName(name string) bool {
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return false
	}
	return strings.HasSuffix(name, ".tmpl") || strings.HasSuffix(name, ".part")
}

// syncToDisk rewrites the template directory to mirror the store exactly,
// then reloads the manager. Files for templates that no longer exist in the
// store are removed.
func (t *TemplateAPI) syncToDisk() error {
	ctx := context.Background()
	infos, err := t.ts.List(ctx)
	if err != nil {
		return err
	}
	stored := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		stored[info.Name] = struct{}{}
	}

	for _, pattern := range []string{"*.tmpl", "*.part"} {
		matches, err := filepath.Glob(filepath.Join(t.templateDir, pattern))
		if err != nil {
			return err
		}
		for _, path := range matches {
			if _, ok := stored[filepath.Base(path)]; !ok {
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("failed to remove stale template file: %w", err)
				}
			}
		}
	}

	if err := t.ts.ExportToDir(ctx, t.templateDir); err != nil {
		return err
	}
	return t.tm.Refresh()
}

// handleRefresh re-materializes the store to disk and reloads the manager.
func (t *TemplateAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:write") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:write' scope")
		return
	}
	if err := t.syncToDisk(); err != nil {
		t.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh templates: %v", err))
		return
	}
	t.logger.Info("Templates refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// handleList returns the metadata of every stored template.
func (t *TemplateAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:read' scope")
		return
	}

	infos, err := t.ts.List(r.Context())
	if err != nil {
		t.logger.Error("Failed to list templates", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	summaries := make([]TemplateSummary, 0, len(infos))
	for _, info := range infos {
		summaries = append(summaries, TemplateSummary{
			Name:      info.Name,
			Version:   info.Version,
			UpdatedAt: info.UpdatedAt.Unix(),
		})
	}
	respondWithJSON(w, http.StatusOK, summaries)
}

// handleCheck validates template syntax without saving or rendering.
func (t *TemplateAPI) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:read' scope")
		return
	}

	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	if err := t.tm.CheckTemplateString(req.Content); err != nil {
		respondWithJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// handlePreview renders an unsaved template against caller-supplied data,
// without touching the stored set.
func (t *TemplateAPI) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:read' scope")
		return
	}

	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	var buf bytes.Buffer
	if err := t.tm.ExecuteTemplateString(&buf, req.Content, req.Data); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template execution failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleExport streams a JSON backup of every template and its history.
func (t *TemplateAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:read' scope")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="weft-templates.json"`)
	if err := t.ts.ExportJSON(r.Context(), w); err != nil {
		t.logger.Error("Template export failed", "error", err)
	}
}

// handleImport merges a JSON backup into the store.
func (t *TemplateAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:write") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:write' scope")
		return
	}

	if err := t.ts.ImportJSON(r.Context(), r.Body); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	if err := t.syncToDisk(); err != nil {
		t.logger.Error("Failed to reload templates after import", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Imported, but reload failed: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleItem dispatches /api/templates/{name} and its sub-resources.
func (t *TemplateAPI) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/templates/")

	if name, ok := strings.CutSuffix(rest, "/versions"); ok {
		t.handleVersions(w, r, name)
		return
	}
	if name, ok := strings.CutSuffix(rest, "/diff"); ok {
		t.handleDiff(w, r, name)
		return
	}

	name := strings.TrimSuffix(rest, "/")
	if !validTemplateName(name) {
		respondWithError(w, http.StatusBadRequest, "Invalid template name: must end in .tmpl or .part and contain no path separators")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !hasScope(r, "templates:read") {
			respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:read' scope")
			return
		}
		info, err := t.ts.Get(r.Context(), name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondWithError(w, http.StatusNotFound, "Template not found")
				return
			}
			t.logger.Error("Failed to load template", "template", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Database query failed")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Weft-Template-Version", strconv.Itoa(info.Version))
		_, _ = w.Write([]byte(info.Content))

	case http.MethodPut:
		if !hasScope(r, "templates:write") {
			respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:write' scope")
			return
		}
		var body bytes.Buffer
		if _, err := body.ReadFrom(r.Body); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read request body: %v", err))
			return
		}
		content := body.String()

		// Reject templates that don't parse; a broken template in the store
		// would poison every Refresh.
		if err := t.tm.CheckTemplateString(content); err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template rejected: %v", err))
			return
		}

		info, err := t.ts.Save(r.Context(), name, content)
		if err != nil {
			t.logger.Error("Failed to save template", "template", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save template: %v", err))
			return
		}
		if err = t.syncToDisk(); err != nil {
			t.logger.Error("Failed to reload templates after save", "template", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Saved, but reload failed: %v", err))
			return
		}
		respondWithJSON(w, http.StatusOK, TemplateSummary{
			Name:      info.Name,
			Version:   info.Version,
			UpdatedAt: info.UpdatedAt.Unix(),
		})

	case http.MethodDelete:
		if !hasScope(r, "templates:write") {
			respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:write' scope")
			return
		}
		if err := t.ts.Delete(r.Context(), name); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondWithError(w, http.StatusNotFound, "Template not found")
				return
			}
			t.logger.Error("Failed to delete template", "template", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete template: %v", err))
			return
		}
		if err := t.syncToDisk(); err != nil {
			t.logger.Error("Failed to reload templates after delete", "template", name, "error", err)
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleVersions returns the revision history of one template.
func (t *TemplateAPI) handleVersions(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:read' scope")
		return
	}
	if !validTemplateName(name) {
		respondWithError(w, http.StatusBadRequest, "Invalid template name")
		return
	}

	versions, err := t.ts.Versions(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Template not found")
			return
		}
		t.logger.Error("Failed to load template versions", "template", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}

	type versionSummary struct {
		Version int   `json:"version"`
		SavedAt int64 `json:"saved_at"`
	}
	summaries := make([]versionSummary, 0, len(versions))
	for _, v := range versions {
		summaries = append(summaries, versionSummary{Version: v.Version, SavedAt: v.SavedAt.Unix()})
	}
	respondWithJSON(w, http.StatusOK, summaries)
}

// handleDiff returns a line diff between two revisions of one template.
func (t *TemplateAPI) handleDiff(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:read' scope")
		return
	}
	if !validTemplateName(name) {
		respondWithError(w, http.StatusBadRequest, "Invalid template name")
		return
	}

	from, err := strconv.Atoi(r.URL.Query().Get("from"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'from' must be a version number")
		return
	}
	to, err := strconv.Atoi(r.URL.Query().Get("to"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'to' must be a version number")
		return
	}

	diff, err := t.ts.DiffVersions(r.Context(), name, from, to)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("Version not found: %v", err))
			return
		}
		t.logger.Error("Failed to diff template versions", "template", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Diff failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(diff))
}
