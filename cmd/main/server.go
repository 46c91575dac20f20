package main

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/weftlang/weft/pkg/store"
	"github.com/weftlang/weft/pkg/templating"
)

// Server wires together the template store, the template manager, and the
// HTTP APIs. The render mux serves stored templates to the public; the api
// mux carries the authenticated management API.
type Server struct {
	cm          *ConfigManager
	db          *sql.DB
	logger      *slog.Logger
	tm          *templating.TemplateManager
	ts          *store.Store
	authAPI     *AuthAPI
	templateAPI *TemplateAPI
	renderAPI   *RenderAPI
	statsAPI    *StatsAPI
	serverAPI   *ServerAPI
	renderMux   *http.ServeMux
	apiMux      *http.ServeMux
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	config := cm.Get()

	ts, err := store.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("error creating template store: %w", err)
	}
	ts.SetLogger(logger)

	tm, err := templating.NewTemplateManager(logger, config.Templates, config.Server.TemplateDir)
	if err != nil {
		ts.Close()
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}
	cm.SetTemplateManager(tm)

	// api initialization
	authAPI := NewAuthAPI(db, logger)
	templateAPI := NewTemplateAPI(ts, tm, config.Server.TemplateDir, logger)
	renderAPI := NewRenderAPI(ts, tm, logger)
	statsAPI := NewStatsAPI(ts, logger)
	serverAPI := NewServerAPI(cm, actionChan, logger)

	server := &Server{
		cm:          cm,
		db:          db,
		logger:      logger,
		tm:          tm,
		ts:          ts,
		authAPI:     authAPI,
		templateAPI: templateAPI,
		renderAPI:   renderAPI,
		statsAPI:    statsAPI,
		serverAPI:   serverAPI,
		renderMux:   http.NewServeMux(),
		apiMux:      http.NewServeMux(),
	}

	// Materialize stored templates to the template directory so the manager
	// picks up whatever survived the last run.
	if err = templateAPI.syncToDisk(); err != nil {
		logger.Error("Failed to materialize stored templates", "error", err)
	}

	apiMux := http.NewServeMux()

	server.authAPI.RegisterRoutes(apiMux)
	server.templateAPI.RegisterRoutes(apiMux)
	server.renderAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Make sure api functions must pass through authentication first
	authedAPI := server.authAPI.Authenticate(apiMux)
	// ... except for the health check, which is unauthed so something like docker can use it
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)

	server.apiMux.Handle("/api/", authedAPI)

	server.renderMux.HandleFunc("/favicon.ico", handleFavicon)
	server.renderMux.HandleFunc("/t/", server.handleRender)

	return server, nil
}

// handleRender serves a stored template over HTTP. Query parameters become
// the template's data, so /t/page.tmpl?title=Hi renders page.tmpl with
// {{.title}} set to "Hi".
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/t/")
	if name == "" || strings.Contains(name, "/") {
		http.NotFound(w, r)
		return
	}

	data := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			data[key] = values[0]
		}
	}

	start := time.Now()
	var buf bytes.Buffer
	err := s.tm.Execute(&buf, name, data)
	duration := time.Since(start)

	if _, statErr := s.ts.RecordRender(r.Context(), name, duration, int64(buf.Len()), err != nil); statErr != nil && !errors.Is(statErr, store.ErrNotFound) {
		s.logger.Warn("Failed to record render", "template", name, "error", statErr)
	}

	if err != nil {
		if strings.Contains(err.Error(), "no template") {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("Failed to execute template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("Served template",
		"template", name,
		"remote_addr", s.getClientIP(r),
		"bytes", buf.Len(),
		"duration", duration)

	w.Header().Set("Cache-Control", "no-store, no-cache")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// getClientIP resolves the originating client address. Forwarding headers
// are only honored when the direct peer is a configured trusted proxy.
func (s *Server) getClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If splitting fails (e.g., no port), use the address as is.
		ip = r.RemoteAddr
	}

	if !s.cm.IsTrusted(ip) {
		return ip
	}

	// The X-Real-Ip header contains the forwarded IP in some cases (like from nginx)
	realIP := r.Header.Get("X-Real-Ip")
	if realIP != "" {
		return realIP
	}

	// The X-Forwarded-For header can contain a comma-separated list of IPs.
	// The first IP in the list is the original client IP.
	forwardedFor := r.Header.Get("X-Forwarded-For")
	if forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	return ip
}

// handleFavicon returns no content so favicon requests don't show up as
// failed template renders in the logs.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
