// Package fetcher downloads source feeds over HTTP and FTP and turns CSV,
// JSON, XLSX, and zipped directory exports into raw records for the import
// pipeline.
package fetcher

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV reader. Directory exports from 211
// aggregators are frequently pipe-delimited and carry UTF-8 BOMs and blank
// padding rows, so those cases are handled here rather than per caller.
type CSVOptions struct {
	Delimiter  rune            // default ','
	HasHeader  bool            // if true, the first row is sent to HeaderCh instead of the row channel
	HeaderCh   chan<- []string // optional: receives the header row
	Comment    rune            // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
	KeepBlank  bool // keep rows whose cells are all empty
}

// StreamCSV reads CSV input and sends data rows to a channel. The caller must
// drain the row channel; both channels close when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(stripBOM(r))
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // exports rarely keep a uniform width

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range row {
					row[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- row:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			if !opts.KeepBlank && blankRow(row) {
				continue
			}

			select {
			case rowCh <- row:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// stripBOM removes a leading UTF-8 byte order mark. Excel-exported feeds
// almost always have one.
func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(3)
	if err == nil && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		br.Discard(3) //nolint:errcheck
	}
	return br
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
