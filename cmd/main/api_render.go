package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/weftlang/weft/pkg/store"
	"github.com/weftlang/weft/pkg/templating"
)

// RenderAPI holds the dependencies for the authenticated render endpoint.
// Unlike the public render server, it accepts arbitrary JSON data and can
// render inline template content that was never saved.
type RenderAPI struct {
	ts     *store.Store
	tm     *templating.TemplateManager
	logger *slog.Logger
}

// NewRenderAPI creates a new instance of the RenderAPI.
func NewRenderAPI(ts *store.Store, tm *templating.TemplateManager, logger *slog.Logger) *RenderAPI {
	return &RenderAPI{
		ts:     ts,
		tm:     tm,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/render endpoints.
func (a *RenderAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/render", a.handleRender)
}

// RenderRequest is the expected JSON body for a render call. Exactly one of
// Name (a stored template) or Content (inline template text) must be set.
type RenderRequest struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// RenderResponse carries the rendered output plus the ID assigned to the
// render in the stats log (empty for inline renders, which are not logged).
type RenderResponse struct {
	RenderID string `json:"render_id,omitempty"`
	Output   string `json:"output"`
}

func (a *RenderAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "render") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'render' scope")
		return
	}

	var req RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if (req.Name == "") == (req.Content == "") {
		respondWithError(w, http.StatusBadRequest, "Exactly one of 'name' or 'content' must be provided")
		return
	}

	var (
		buf      bytes.Buffer
		renderID string
	)

	if req.Content != "" {
		if err := a.tm.ExecuteTemplateString(&buf, req.Content, req.Data); err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template execution failed: %v", err))
			return
		}
		respondWithJSON(w, http.StatusOK, RenderResponse{Output: buf.String()})
		return
	}

	start := time.Now()
	err := a.tm.Execute(&buf, req.Name, req.Data)
	duration := time.Since(start)

	renderID, statErr := a.ts.RecordRender(r.Context(), req.Name, duration, int64(buf.Len()), err != nil)
	if statErr != nil && !errors.Is(statErr, store.ErrNotFound) {
		a.logger.Warn("Failed to record render", "template", req.Name, "error", statErr)
	}

	if err != nil {
		if strings.Contains(err.Error(), "no template") {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("Template %q not found", req.Name))
			return
		}
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template execution failed: %v", err))
		return
	}

	respondWithJSON(w, http.StatusOK, RenderResponse{RenderID: renderID, Output: buf.String()})
}
