package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"

	"ship/internal/ship/ports"
)

// ZipPackager turns generated files into a single zip archive for download.
// Paths are normalized and deduplicated; the first occurrence of a path
// wins, later duplicates are skipped.
type ZipPackager struct{}

// NewZipPackager returns a packager.
func NewZipPackager() *ZipPackager { return &ZipPackager{} }

// Package writes all files into an in-memory zip archive. Entries are
// ordered by path so the same file set always yields the same archive
// layout.
func (p *ZipPackager) Package(files []ports.GeneratedFile) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to package")
	}

	seen := make(map[string]ports.GeneratedFile, len(files))
	var paths []string
	for _, file := range files {
		clean, err := normalizePath(file.Path)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = file
		paths = append(paths, clean)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, clean := range paths {
		entry, err := w.Create(clean)
		if err != nil {
			return nil, fmt.Errorf("create zip entry %s: %w", clean, err)
		}
		if _, err := entry.Write([]byte(seen[clean].Content)); err != nil {
			return nil, fmt.Errorf("write zip entry %s: %w", clean, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	return buf.Bytes(), nil
}

// normalizePath rejects entries that would escape the archive root when
// extracted.
func normalizePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("file has no path")
	}
	clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("unsafe file path %q", p)
	}
	return clean, nil
}

var _ ports.Packager = (*ZipPackager)(nil)
