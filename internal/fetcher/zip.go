package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// maxArchiveEntryBytes caps one decompressed feed file. Statewide directory
// exports top out around tens of megabytes; anything past this is a bad or
// hostile archive. Variable so tests can lower it.
var maxArchiveEntryBytes int64 = 256 << 20

// dataExtensions are the record formats a feed archive may carry.
var dataExtensions = map[string]bool{
	".csv":  true,
	".json": true,
	".xlsx": true,
}

// ExtractFeedFile extracts the single data file from a downloaded feed
// archive into destDir and returns its path. Directories, macOS metadata,
// dotfiles, and readme-style extras that agency archives routinely carry are
// ignored; exactly one data file must remain.
func ExtractFeedFile(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var data []*zip.File
	for _, f := range r.File {
		if isDataEntry(f) {
			data = append(data, f)
		}
	}
	if len(data) != 1 {
		return "", eris.Errorf("zip: expected exactly 1 data file in archive, got %d", len(data))
	}

	return extractEntry(data[0], destDir)
}

// isDataEntry reports whether an archive member looks like a record feed.
func isDataEntry(f *zip.File) bool {
	if f.FileInfo().IsDir() {
		return false
	}
	base := filepath.Base(f.Name)
	if strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(base, ".") {
		return false
	}
	return dataExtensions[strings.ToLower(filepath.Ext(base))]
}

// extractEntry writes one archive member into destDir under its base name,
// guarding against zip-slip paths and decompression bombs.
func extractEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, io.LimitReader(rc, maxArchiveEntryBytes+1))
	if err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}
	if n > maxArchiveEntryBytes {
		os.Remove(destPath) //nolint:errcheck
		return "", eris.Errorf("zip: entry %q exceeds %d byte limit", f.Name, maxArchiveEntryBytes)
	}

	return destPath, nil
}
