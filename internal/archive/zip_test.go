package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"ship/internal/ship/ports"
)

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	out := make(map[string]string)
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		out[f.Name] = string(content)
	}
	return out
}

func TestZipPackager_RoundTrip(t *testing.T) {
	data, err := NewZipPackager().Package([]ports.GeneratedFile{
		{Path: "src/main.go", Content: "package main"},
		{Path: "README.md", Content: "# app"},
	})
	if err != nil {
		t.Fatalf("package: %v", err)
	}
	entries := readArchive(t, data)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries["src/main.go"] != "package main" {
		t.Fatalf("src/main.go content = %q", entries["src/main.go"])
	}
}

func TestZipPackager_FirstDuplicateWins(t *testing.T) {
	data, err := NewZipPackager().Package([]ports.GeneratedFile{
		{Path: "config.yaml", Content: "first"},
		{Path: "./config.yaml", Content: "second"},
	})
	if err != nil {
		t.Fatalf("package: %v", err)
	}
	entries := readArchive(t, data)
	if len(entries) != 1 || entries["config.yaml"] != "first" {
		t.Fatalf("entries = %v, want single config.yaml with the first content", entries)
	}
}

func TestZipPackager_RejectsEscapingPaths(t *testing.T) {
	for _, p := range []string{"../etc/passwd", "", "  ", "/"} {
		if _, err := NewZipPackager().Package([]ports.GeneratedFile{{Path: p, Content: "x"}}); err == nil {
			t.Errorf("path %q should be rejected", p)
		}
	}
}

func TestZipPackager_EmptyInputIsAnError(t *testing.T) {
	if _, err := NewZipPackager().Package(nil); err == nil {
		t.Fatal("empty file list should be rejected")
	}
}
