package templating

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setupTestManager creates a TemplateManager for a single test's scope, with
// one full template and one partial on disk.
func setupTestManager(tb testing.TB) *TemplateManager {
	tb.Helper()

	templateDir := tb.TempDir()
	files := map[string]string{
		"dummy.tmpl":  "Hello",
		"page.tmpl":   `page: {{template "header.part" .}}`,
		"header.part": "header for {{.}}",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(templateDir, name), []byte(content), 0o644); err != nil {
			tb.Fatalf("failed to write template %s: %v", name, err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	config := DefaultConfig()
	tm, err := NewTemplateManager(logger, &config, templateDir)
	if err != nil {
		tb.Fatalf("NewTemplateManager failed: %v", err)
	}
	return tm
}

func TestNewTemplateManager(t *testing.T) {
	tm := setupTestManager(t)
	names := tm.GetTemplateNames()
	if len(names) != 2 {
		t.Fatalf("expected 2 full templates, got %v", names)
	}
	all := tm.GetAllNames()
	if len(all) != 3 {
		t.Errorf("expected 3 associated templates including the partial, got %v", all)
	}
}

func TestManager_Refresh(t *testing.T) {
	tm := setupTestManager(t)
	initialCount := len(tm.GetTemplateNames())

	newTmplPath := filepath.Join(tm.GetTemplateDir(), "new.tmpl")
	if err := os.WriteFile(newTmplPath, []byte(`New Content`), 0o644); err != nil {
		t.Fatalf("failed to write new template: %v", err)
	}

	if err := tm.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if got := len(tm.GetTemplateNames()); got != initialCount+1 {
		t.Errorf("expected %d templates after refresh, got %d", initialCount+1, got)
	}
}

func TestManager_Execute(t *testing.T) {
	tm := setupTestManager(t)
	var buf bytes.Buffer
	if err := tm.Execute(&buf, "dummy.tmpl", nil); err != nil {
		t.Fatalf("Execute failed for valid template: %v", err)
	}
	if buf.String() != "Hello" {
		t.Errorf("expected output 'Hello', got '%s'", buf.String())
	}

	err := tm.Execute(&buf, "nonexistent.tmpl", nil)
	if err == nil {
		t.Fatal("expected an error for non-existent template, but got nil")
	}
	if !strings.Contains(err.Error(), `no template "nonexistent.tmpl"`) {
		t.Errorf("error message mismatch: got '%v'", err)
	}
}

func TestManager_ExecutePartialComposition(t *testing.T) {
	tm := setupTestManager(t)
	var buf bytes.Buffer
	if err := tm.Execute(&buf, "page.tmpl", "site"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if buf.String() != "page: header for site" {
		t.Errorf("got %q", buf.String())
	}
}

func TestManager_ExecuteTemplateString(t *testing.T) {
	tm := setupTestManager(t)

	var buf bytes.Buffer
	if err := tm.ExecuteTemplateString(&buf, `{{upper "abc"}}`, nil); err != nil {
		t.Fatalf("ExecuteTemplateString failed: %v", err)
	}
	if buf.String() != "ABC" {
		t.Errorf("got %q, want ABC", buf.String())
	}

	// String templates can invoke loaded partials.
	buf.Reset()
	if err := tm.ExecuteTemplateString(&buf, `{{template "header.part" "x"}}`, nil); err != nil {
		t.Fatalf("ExecuteTemplateString with partial failed: %v", err)
	}
	if buf.String() != "header for x" {
		t.Errorf("got %q", buf.String())
	}

	// A parse inside string execution must not pollute the live set.
	buf.Reset()
	if err := tm.ExecuteTemplateString(&buf, `{{define "header.part"}}evil{{end}}ok`, nil); err != nil {
		t.Fatalf("ExecuteTemplateString failed: %v", err)
	}
	buf.Reset()
	if err := tm.Execute(&buf, "page.tmpl", "site"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if buf.String() != "page: header for site" {
		t.Errorf("string execution leaked into the live set: %q", buf.String())
	}

	if err := tm.ExecuteTemplateString(io.Discard, "{{unclosed", nil); err == nil {
		t.Error("expected parse error for bad template string")
	}
}

func TestManager_CheckTemplateString(t *testing.T) {
	tm := setupTestManager(t)
	if err := tm.CheckTemplateString(`ok {{upper "x"}}`); err != nil {
		t.Errorf("CheckTemplateString rejected a valid template: %v", err)
	}
	if err := tm.CheckTemplateString("{{if}}"); err == nil {
		t.Error("CheckTemplateString accepted an invalid template")
	}
}

func TestManager_OutputLimit(t *testing.T) {
	tm := setupTestManager(t)
	config := DefaultConfig()
	config.MaxOutputBytes = 10
	tm.SetConfig(&config)

	var buf bytes.Buffer
	err := tm.ExecuteTemplateString(&buf, `{{range seq 1 100}}xxxxx{{end}}`, nil)
	if !errors.Is(err, ErrOutputLimit) {
		t.Fatalf("expected ErrOutputLimit, got %v", err)
	}
	if int64(buf.Len()) > config.MaxOutputBytes {
		t.Errorf("output %d bytes exceeds the %d byte cap", buf.Len(), config.MaxOutputBytes)
	}
}

func TestManager_SetConfig(t *testing.T) {
	tm := setupTestManager(t)
	newConfig := DefaultConfig()
	newConfig.MaxRepeat = 7
	tm.SetConfig(&newConfig)

	if got := tm.GetConfig().MaxRepeat; got != 7 {
		t.Errorf("SetConfig failed to update MaxRepeat: expected 7, got %d", got)
	}
	if got := len(tm.repeat(100)); got != 7 {
		t.Errorf("repeat did not honor the updated cap, generated %d items", got)
	}
}

func TestManager_FuncNames(t *testing.T) {
	tm := setupTestManager(t)
	names := tm.FuncNames()
	if len(names) == 0 {
		t.Fatal("FuncNames returned nothing")
	}
	for _, want := range []string{"upper", "add", "toJSON", "comma", "now"} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("FuncNames is missing %q", want)
		}
	}
}

// setupBenchmarkTemplate is a helper to create and load a specific template
// for a benchmark.
func setupBenchmarkTemplate(b *testing.B, tm *TemplateManager, name, content string) {
	b.Helper()
	templatePath := filepath.Join(tm.GetTemplateDir(), name)
	if err := os.WriteFile(templatePath, []byte(content), 0o644); err != nil {
		b.Fatalf("failed to write benchmark template %s: %v", name, err)
	}
	if err := tm.Refresh(); err != nil {
		b.Fatalf("failed to refresh after writing template %s: %v", name, err)
	}
}

// BenchmarkExecute_Simple measures the cost of common, low-overhead functions.
func BenchmarkExecute_Simple(b *testing.B) {
	tm := setupTestManager(b)
	content := `<h1>{{upper "title"}}</h1><p>{{add 2 3}} items</p>`
	setupBenchmarkTemplate(b, tm, "simple_funcs.tmpl", content)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tm.Execute(io.Discard, "simple_funcs.tmpl", nil)
	}
}

// BenchmarkExecute_Collections measures iteration-heavy templates.
func BenchmarkExecute_Collections(b *testing.B) {
	tm := setupTestManager(b)
	content := `{{range seq 1 100}}<li>{{.}}</li>{{end}}`
	setupBenchmarkTemplate(b, tm, "collections.tmpl", content)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tm.Execute(io.Discard, "collections.tmpl", nil)
	}
}

// BenchmarkExecuteTemplateString measures the clone-parse-execute path used
// for previews.
func BenchmarkExecuteTemplateString(b *testing.B) {
	tm := setupTestManager(b)
	content := `{{join ", " (sortAlpha (list "b" "a" "c"))}}`
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tm.ExecuteTemplateString(io.Discard, content, nil)
	}
}
