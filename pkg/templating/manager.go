package templating

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/weftlang/weft/pkg/weft"
)

// ErrOutputLimit is returned when a render produces more bytes than the
// configured MaxOutputBytes allows.
var ErrOutputLimit = errors.New("template output exceeds configured limit")

// TemplateManager is the central controller for the templating engine.
// It owns the loaded template set, the configuration and the function map,
// and is responsible for loading, parsing, and executing templates in a
// concurrent-safe manner. All methods are concurrent-safe.
type TemplateManager struct {
	logger         *slog.Logger
	config         *TemplateConfig
	templates      *weft.Template
	cleanTemplates *weft.Template
	templateNames  []string
	funcMap        weft.FuncMap
	templateDir    string
	mu             sync.RWMutex
}

// NewTemplateManager creates, initializes, and returns a new TemplateManager.
// It requires a logger, a configuration, and a template directory holding
// *.tmpl files (full templates) and *.part files (partials). It performs an
// initial Refresh to load all templates.
func NewTemplateManager(logger *slog.Logger, config *TemplateConfig, templateDir string) (*TemplateManager, error) {
	tm := &TemplateManager{
		logger:      logger,
		config:      config,
		templateDir: templateDir,
	}
	tm.funcMap = tm.makeFuncMap()

	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized")
	return tm, nil
}

func (tm *TemplateManager) makeFuncMap() weft.FuncMap {
	return weft.FuncMap{
		// Strings (from funcs_strings.go)
		"upper":      strings.ToUpper,
		"lower":      strings.ToLower,
		"title":      title,
		"trim":       strings.TrimSpace,
		"trimPrefix": trimPrefix,
		"trimSuffix": trimSuffix,
		"replace":    replace,
		"split":      split,
		"join":       join,
		"contains":   strings.Contains,
		"hasPrefix":  strings.HasPrefix,
		"hasSuffix":  strings.HasSuffix,
		"truncate":   tm.truncate,
		"indent":     tm.indent,

		// Math (from funcs_math.go)
		"add":   add,
		"sub":   sub,
		"div":   div,
		"mult":  mult,
		"max":   intMax,
		"min":   intMin,
		"mod":   mod,
		"inc":   inc,
		"dec":   dec,
		"isSet": isSet,

		// Collections (from funcs_collections.go)
		"list":      list,
		"dict":      dict,
		"first":     first,
		"last":      last,
		"rest":      rest,
		"uniq":      uniq,
		"sortAlpha": sortAlpha,
		"keys":      keys,
		"has":       has,
		"repeat":    tm.repeat,
		"seq":       tm.seq,

		// Encoding (from funcs_encode.go)
		"toJSON":         toJSON,
		"fromJSON":       fromJSON,
		"b64enc":         b64enc,
		"b64dec":         b64dec,
		"sha256sum":      sha256sum,
		"obfuscateEmail": obfuscateEmail,

		// Formatting (from funcs_format.go)
		"comma":    comma,
		"bytesize": bytesize,
		"reltime":  reltime,
		"ordinal":  ordinal,

		// Time (from funcs_time.go)
		"now":        now,
		"date":       tm.date,
		"dateModify": dateModify,
		"unixEpoch":  unixEpoch,
	}
}

// SetConfig applies a new configuration to the TemplateManager. This allows
// changes to the engine's behavior, such as updating safety limits, without
// restarting the application.
func (tm *TemplateManager) SetConfig(config *TemplateConfig) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config
}

// Refresh reloads all templates from the filesystem. This allows updates to
// templates without restarting the application.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	filePattern := filepath.Join(tm.templateDir, "*.tmpl")
	tm.logger.Info("Loading template files...")

	parsedFiles, err := weft.New("root").Funcs(tm.funcMap).ParseGlob(filePattern)
	var names []string
	if err != nil {
		if !strings.Contains(err.Error(), "pattern matches no files") {
			tm.logger.Error("failed to parse template files", "error", err)
			return err
		}
		// No template files, so the set starts out empty.
		parsedFiles = weft.New("root").Funcs(tm.funcMap)
	} else {
		for _, t := range parsedFiles.Templates() {
			// The unnamed root holder is not executable; skip it.
			if strings.HasSuffix(t.Name(), ".tmpl") {
				names = append(names, t.Name())
			}
		}
		sort.Strings(names)
	}

	filePattern = filepath.Join(tm.templateDir, "*.part")
	tm.logger.Info("Loading partial files...")

	newParsedFiles, err := parsedFiles.ParseGlob(filePattern)
	if err != nil {
		if !strings.Contains(err.Error(), "pattern matches no files") {
			tm.logger.Error("failed to parse partial files", "error", err)
			return err
		}
		newParsedFiles = parsedFiles
	}
	// Partials are left out of templateNames, which lists full pages only.

	if len(names) == 0 {
		tm.logger.Warn("No template files found matching pattern", "pattern", filePattern)
	}

	tm.templates = newParsedFiles
	tm.templateNames = names
	tm.logger.Info("Loaded template and partial files", "count", len(newParsedFiles.Templates()))

	// Keep a clean clone aside for string executions.
	tm.cleanTemplates, err = tm.templates.Clone()
	if err != nil {
		tm.logger.Error("failed to create a clean clone of templates", "error", err)
		return err
	}

	return nil
}

// Execute renders a specific template by name, writing the output to the
// provided io.Writer. Output is capped at the configured MaxOutputBytes; a
// render that exceeds it fails with ErrOutputLimit after writing the cap.
func (tm *TemplateManager) Execute(w io.Writer, name string, data any) error {
	if name == "" {
		return nil
	}
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	lw := &limitWriter{w: w, remaining: tm.config.MaxOutputBytes}
	err := tm.templates.ExecuteTemplate(lw, name, data)
	if errors.Is(err, ErrOutputLimit) {
		tm.logger.Warn("Render hit output limit", "template", name, "limit", tm.config.MaxOutputBytes)
	}
	return err
}

// GetConfig returns a copy of the current configuration.
// This mainly exists for concurrency-safety reasons.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// GetTemplateNames returns the names of the loaded full templates, sorted.
func (tm *TemplateManager) GetTemplateNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	names := make([]string, len(tm.templateNames))
	copy(names, tm.templateNames)
	return names
}

// GetAllNames returns the names of every associated template in the set,
// partials included.
func (tm *TemplateManager) GetAllNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	var names []string
	for _, t := range tm.templates.Templates() {
		if t.Name() != "root" {
			names = append(names, t.Name())
		}
	}
	sort.Strings(names)
	return names
}

// GetTemplateDir returns the template dir that the TemplateManager uses.
func (tm *TemplateManager) GetTemplateDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.templateDir
}

// FuncNames returns the names of all functions available to templates,
// sorted.
func (tm *TemplateManager) FuncNames() []string {
	names := make([]string, 0, len(tm.funcMap))
	for name := range tm.funcMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecuteTemplateString parses and executes a raw template string using the
// manager's function map and the loaded partials. This is ideal for testing
// or previewing templates without saving them to disk.
func (tm *TemplateManager) ExecuteTemplateString(w io.Writer, content string, data any) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	// Clone the clean, unexecuted template set so the parse cannot disturb
	// the live set.
	tempSet, err := tm.cleanTemplates.Clone()
	if err != nil {
		return fmt.Errorf("failed to clone clean templates for string execution: %w", err)
	}

	t, err := tempSet.New("inline").Parse(content)
	if err != nil {
		return fmt.Errorf("failed to parse string template: %w", err)
	}

	lw := &limitWriter{w: w, remaining: tm.config.MaxOutputBytes}
	return t.Execute(lw, data)
}

// CheckTemplateString parses content without executing it and reports any
// syntax error. Used for template validation endpoints.
func (tm *TemplateManager) CheckTemplateString(content string) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	tempSet, err := tm.cleanTemplates.Clone()
	if err != nil {
		return fmt.Errorf("failed to clone clean templates for validation: %w", err)
	}
	_, err = tempSet.New("inline").Parse(content)
	return err
}

// limitWriter counts down a byte budget and fails once it is spent.
type limitWriter struct {
	w         io.Writer
	remaining int64
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		return 0, ErrOutputLimit
	}
	if int64(len(p)) > lw.remaining {
		n, err := lw.w.Write(p[:lw.remaining])
		lw.remaining -= int64(n)
		if err != nil {
			return n, err
		}
		return n, ErrOutputLimit
	}
	n, err := lw.w.Write(p)
	lw.remaining -= int64(n)
	return n, err
}
