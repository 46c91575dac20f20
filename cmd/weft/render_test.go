package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDataFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write data file: %v", err)
	}
	return path
}

func TestLoadData(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		path := writeDataFile(t, "data.json", `{"name": "ann", "count": 3}`)
		data, err := loadData(path, nil)
		if err != nil {
			t.Fatalf("loadData failed: %v", err)
		}
		if data["name"] != "ann" || data["count"] != float64(3) {
			t.Errorf("unexpected data: %v", data)
		}
	})

	t.Run("YAML", func(t *testing.T) {
		path := writeDataFile(t, "data.yaml", "name: ann\ncount: 3\n")
		data, err := loadData(path, nil)
		if err != nil {
			t.Fatalf("loadData failed: %v", err)
		}
		if data["name"] != "ann" || data["count"] != 3 {
			t.Errorf("unexpected data: %v", data)
		}
	})

	t.Run("SetOverrides", func(t *testing.T) {
		path := writeDataFile(t, "data.json", `{"name": "ann"}`)
		data, err := loadData(path, []string{"name=bob", "extra=1"})
		if err != nil {
			t.Fatalf("loadData failed: %v", err)
		}
		if data["name"] != "bob" || data["extra"] != "1" {
			t.Errorf("unexpected data: %v", data)
		}
	})

	t.Run("SetOnly", func(t *testing.T) {
		data, err := loadData("", []string{"k=v"})
		if err != nil {
			t.Fatalf("loadData failed: %v", err)
		}
		if data["k"] != "v" {
			t.Errorf("unexpected data: %v", data)
		}
	})

	t.Run("BadSet", func(t *testing.T) {
		if _, err := loadData("", []string{"novalue"}); err == nil {
			t.Error("loadData accepted a --set with no '='")
		}
	})

	t.Run("BadJSON", func(t *testing.T) {
		path := writeDataFile(t, "data.json", "{nope")
		if _, err := loadData(path, nil); err == nil {
			t.Error("loadData accepted malformed JSON")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := loadData("/nonexistent/data.json", nil); err == nil {
			t.Error("loadData accepted a missing file")
		}
	})
}
