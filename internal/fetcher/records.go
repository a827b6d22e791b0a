package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadRecords loads raw records from a local file, an http(s):// URL, or an
// ftp:// URL. The format is inferred from the extension: .csv, .json (an
// array of objects), .xlsx, or .zip containing exactly one of those.
// Tabular rows are zipped with their header row into key→value records.
func ReadRecords(ctx context.Context, source string) ([]map[string]any, error) {
	path, cleanup, err := materialize(ctx, source)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return CSVRecords(ctx, f)
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return JSONRecords(ctx, f)
	case ".xlsx":
		return XLSXRecords(path)
	case ".zip":
		dir, err := os.MkdirTemp("", "resource-import-zip-")
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: temp dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck
		inner, err := ExtractFeedFile(path, dir)
		if err != nil {
			return nil, err
		}
		return ReadRecords(ctx, inner)
	default:
		return nil, eris.Errorf("fetcher: unsupported source format %q", filepath.Ext(path))
	}
}

// materialize makes the source available as a local file. Remote sources are
// downloaded to a temp file that cleanup removes.
func materialize(ctx context.Context, source string) (path string, cleanup func(), err error) {
	u, uerr := url.Parse(source)
	if uerr != nil || u.Scheme == "" || u.Scheme == "file" {
		return strings.TrimPrefix(source, "file://"), nil, nil
	}

	tmp, err := os.CreateTemp("", "resource-import-*"+filepath.Ext(u.Path))
	if err != nil {
		return "", nil, eris.Wrap(err, "fetcher: temp file")
	}
	tmp.Close()                                //nolint:errcheck
	cleanup = func() { os.Remove(tmp.Name()) } //nolint:errcheck

	// FTP feeds never carry ETags, so only the download slice of Fetcher is
	// needed here.
	var f interface {
		DownloadToFile(ctx context.Context, url, path string) (int64, error)
	}
	switch u.Scheme {
	case "http", "https":
		f = NewHTTPFetcher(HTTPOptions{RateLimiters: DefaultRateLimiters()})
	case "ftp":
		f = NewFTPFetcher(FTPOptions{})
	default:
		cleanup()
		return "", nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}

	if _, err := f.DownloadToFile(ctx, source, tmp.Name()); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp.Name(), cleanup, nil
}

// CSVRecords parses CSV input into records keyed by the header row.
func CSVRecords(ctx context.Context, r io.Reader) ([]map[string]any, error) {
	headerCh := make(chan []string, 1)
	rows, errs := StreamCSV(ctx, r, CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var raw [][]string
	for row := range rows {
		raw = append(raw, row)
	}
	if err := <-errs; err != nil {
		return nil, err
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, nil // empty input, not even a header
	}

	out := make([]map[string]any, 0, len(raw))
	for _, row := range raw {
		out = append(out, zipHeader(header, row))
	}
	return out, nil
}

// JSONRecords decodes a JSON array of objects into records.
func JSONRecords(ctx context.Context, r io.Reader) ([]map[string]any, error) {
	items, errs := DecodeJSONArray[map[string]any](ctx, r)

	var out []map[string]any
	for item := range items {
		out = append(out, item)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return out, nil
}

// XLSXRecords reads the first sheet of an XLSX workbook into records keyed by
// the header row. Agency workbooks often open with a one-cell title banner;
// the header is the first row with more than one column.
func XLSXRecords(path string) ([]map[string]any, error) {
	rows, err := ReadXLSX(path, XLSXOptions{})
	if err != nil {
		return nil, err
	}

	start := 0
	for start < len(rows) && len(rows[start]) < 2 {
		start++
	}
	if start >= len(rows) {
		return nil, nil
	}

	header := rows[start]
	out := make([]map[string]any, 0, len(rows)-start-1)
	for _, row := range rows[start+1:] {
		out = append(out, zipHeader(header, row))
	}
	return out, nil
}

// zipHeader pairs header cells with row cells. Short rows leave trailing keys
// absent; cells past the header are dropped.
func zipHeader(header, row []string) map[string]any {
	rec := make(map[string]any, len(header))
	for i, key := range header {
		if key == "" || i >= len(row) {
			continue
		}
		rec[key] = row[i]
	}
	return rec
}
