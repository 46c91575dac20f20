package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestStore creates a new SQLite database and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestStore(tb testing.TB) *Store {
	tb.Helper()

	dbFile := filepath.Join(tb.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		tb.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		tb.Fatalf("NewStore() error = %v", err)
	}
	tb.Cleanup(s.Close)

	return s
}

func TestSaveAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	info, err := s.Save(ctx, "greeting.tmpl", "Hello {{.Name}}")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if info.Version != 1 {
		t.Errorf("new template should be version 1, got %d", info.Version)
	}

	// Saving identical content must not bump the version.
	info, err = s.Save(ctx, "greeting.tmpl", "Hello {{.Name}}")
	if err != nil {
		t.Fatalf("idempotent Save() failed: %v", err)
	}
	if info.Version != 1 {
		t.Errorf("unchanged save bumped version to %d", info.Version)
	}

	info, err = s.Save(ctx, "greeting.tmpl", "Hi {{.Name}}")
	if err != nil {
		t.Fatalf("Save() of new content failed: %v", err)
	}
	if info.Version != 2 {
		t.Errorf("expected version 2 after change, got %d", info.Version)
	}

	got, err := s.Get(ctx, "greeting.tmpl")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Content != "Hi {{.Name}}" || got.Version != 2 {
		t.Errorf("Get() returned %+v", got)
	}

	if _, err := s.Get(ctx, "missing.tmpl"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() of missing template: want ErrNotFound, got %v", err)
	}

	if _, err := s.Save(ctx, "", "x"); err == nil {
		t.Error("Save() accepted an empty name")
	}
}

func TestList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"b.tmpl", "a.tmpl"} {
		if _, err := s.Save(ctx, name, "content"); err != nil {
			t.Fatalf("Save(%q) failed: %v", name, err)
		}
	}

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "a.tmpl" || infos[1].Name != "b.tmpl" {
		t.Errorf("List() returned %+v", infos)
	}
}

func TestDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "doomed.tmpl", "v1"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := s.Save(ctx, "doomed.tmpl", "v2"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := s.RecordRender(ctx, "doomed.tmpl", time.Millisecond, 10, false); err != nil {
		t.Fatalf("RecordRender() failed: %v", err)
	}

	if err := s.Delete(ctx, "doomed.tmpl"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := s.Get(ctx, "doomed.tmpl"); !errors.Is(err, ErrNotFound) {
		t.Errorf("template still present after delete: %v", err)
	}
	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("stats survived template deletion: %+v", stats)
	}

	if err := s.Delete(ctx, "never-existed.tmpl"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() of missing template: want ErrNotFound, got %v", err)
	}
}

func TestVersions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		if _, err := s.Save(ctx, "v.tmpl", content); err != nil {
			t.Fatalf("Save(%q) failed: %v", content, err)
		}
	}

	versions, err := s.Versions(ctx, "v.tmpl")
	if err != nil {
		t.Fatalf("Versions() failed: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	for i, want := range []string{"one", "two", "three"} {
		if versions[i].Version != i+1 || versions[i].Content != want {
			t.Errorf("version %d = %+v, want content %q", i+1, versions[i], want)
		}
	}

	old, err := s.GetVersion(ctx, "v.tmpl", 1)
	if err != nil {
		t.Fatalf("GetVersion(1) failed: %v", err)
	}
	if old.Content != "one" {
		t.Errorf("GetVersion(1) content = %q", old.Content)
	}

	current, err := s.GetVersion(ctx, "v.tmpl", 3)
	if err != nil {
		t.Fatalf("GetVersion(3) failed: %v", err)
	}
	if current.Content != "three" {
		t.Errorf("GetVersion(3) content = %q", current.Content)
	}

	if _, err := s.GetVersion(ctx, "v.tmpl", 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetVersion(99): want ErrNotFound, got %v", err)
	}
}

func TestDiffVersions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "d.tmpl", "line one\nline two"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := s.Save(ctx, "d.tmpl", "line one\nline 2"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	diff, err := s.DiffVersions(ctx, "d.tmpl", 1, 2)
	if err != nil {
		t.Fatalf("DiffVersions() failed: %v", err)
	}
	if !strings.Contains(diff, "line two") || !strings.Contains(diff, "line 2") {
		t.Errorf("diff missing changed lines:\n%s", diff)
	}

	if _, err := s.DiffVersions(ctx, "d.tmpl", 1, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("DiffVersions with bad version: want ErrNotFound, got %v", err)
	}
}

func TestRenderStats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "page.tmpl", "content"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	id1, err := s.RecordRender(ctx, "page.tmpl", 2*time.Millisecond, 100, false)
	if err != nil {
		t.Fatalf("RecordRender() failed: %v", err)
	}
	id2, err := s.RecordRender(ctx, "page.tmpl", 3*time.Millisecond, 50, true)
	if err != nil {
		t.Fatalf("RecordRender() failed: %v", err)
	}
	if id1 == "" || id1 == id2 {
		t.Errorf("render IDs not unique: %q vs %q", id1, id2)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected stats for 1 template, got %d", len(stats))
	}
	st := stats[0]
	if st.Name != "page.tmpl" || st.RenderCount != 2 || st.ErrorCount != 1 {
		t.Errorf("unexpected counters: %+v", st)
	}
	if st.TotalBytes != 150 {
		t.Errorf("TotalBytes = %d, want 150", st.TotalBytes)
	}
	if st.TotalDuration != 5*time.Millisecond {
		t.Errorf("TotalDuration = %v, want 5ms", st.TotalDuration)
	}
	if st.LastRenderID != id2 {
		t.Errorf("LastRenderID = %q, want %q", st.LastRenderID, id2)
	}

	if _, err := s.RecordRender(ctx, "ghost.tmpl", time.Millisecond, 1, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordRender for unknown template: want ErrNotFound, got %v", err)
	}

	if err := s.ResetStats(ctx); err != nil {
		t.Fatalf("ResetStats() failed: %v", err)
	}
	stats, err = s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() after reset failed: %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("stats survived reset: %+v", stats)
	}
}

func TestExportImportJSON(t *testing.T) {
	src := setupTestStore(t)
	dst := setupTestStore(t)
	ctx := context.Background()

	if _, err := src.Save(ctx, "a.tmpl", "alpha v1"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := src.Save(ctx, "a.tmpl", "alpha v2"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := src.Save(ctx, "b.tmpl", "beta"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	var buf bytes.Buffer
	if err := src.ExportJSON(ctx, &buf); err != nil {
		t.Fatalf("ExportJSON() failed: %v", err)
	}

	if err := dst.ImportJSON(ctx, bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("ImportJSON() failed: %v", err)
	}

	got, err := dst.Get(ctx, "a.tmpl")
	if err != nil {
		t.Fatalf("Get() after import failed: %v", err)
	}
	if got.Content != "alpha v2" || got.Version != 2 {
		t.Errorf("imported template = %+v", got)
	}
	versions, err := dst.Versions(ctx, "a.tmpl")
	if err != nil {
		t.Fatalf("Versions() after import failed: %v", err)
	}
	if len(versions) != 2 || versions[0].Content != "alpha v1" {
		t.Errorf("history not imported: %+v", versions)
	}

	// Re-importing identical content must not create new revisions.
	if err := dst.ImportJSON(ctx, bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("second ImportJSON() failed: %v", err)
	}
	got, err = dst.Get(ctx, "a.tmpl")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("no-op import bumped version to %d", got.Version)
	}

	// Importing changed content on top of an existing template archives it.
	if _, err := dst.Save(ctx, "b.tmpl", "beta local edit"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := dst.ImportJSON(ctx, bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("third ImportJSON() failed: %v", err)
	}
	got, err = dst.Get(ctx, "b.tmpl")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Content != "beta" || got.Version != 3 {
		t.Errorf("merge import produced %+v", got)
	}

	if err := dst.ImportJSON(ctx, strings.NewReader("{not json")); err == nil {
		t.Error("ImportJSON() accepted malformed input")
	}
}

func TestExportToDir(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "x.tmpl", "ex"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := s.Save(ctx, "y.part", "why"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "exported")
	if err := s.ExportToDir(ctx, dir); err != nil {
		t.Fatalf("ExportToDir() failed: %v", err)
	}

	for name, want := range map[string]string{"x.tmpl": "ex", "y.part": "why"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("exported file %s missing: %v", name, err)
		}
		if string(data) != want {
			t.Errorf("exported %s = %q, want %q", name, data, want)
		}
	}
}

func BenchmarkSave(b *testing.B) {
	s := setupTestStore(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		content := "content " + string(rune('a'+i%26))
		if _, err := s.Save(ctx, "bench.tmpl", content); err != nil {
			b.Fatalf("Save() failed: %v", err)
		}
	}
}

func BenchmarkRecordRender(b *testing.B) {
	s := setupTestStore(b)
	ctx := context.Background()
	if _, err := s.Save(ctx, "bench.tmpl", "content"); err != nil {
		b.Fatalf("Save() failed: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.RecordRender(ctx, "bench.tmpl", time.Millisecond, 64, false); err != nil {
			b.Fatalf("RecordRender() failed: %v", err)
		}
	}
}
