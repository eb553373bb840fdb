// Package csv streams CSV input as records aligned to the target columns. It
// never buffers the whole input, so multi-GB registry dumps are fine.
//
// Options (all optional):
//   - has_header (bool, default true): first line names the fields; names are
//     canonicalized through header_map, see colmap.Canonical.
//   - header_map (map): source header -> column name.
//   - comma (char, default ','), comment (char, default none).
//   - trim_space (bool, default true).
//   - empty_as_null (bool, default true): "" becomes NULL.
//   - lazy_quotes (bool): csv.Reader.LazyQuotes.
//   - expected_fields (int): enforce the field count of every data line.
//   - skip_malformed (bool): drop unparsable or wrong-width lines instead of
//     failing; see Reader.Skipped.
//   - stream_scrub_likvidaci (bool): rewrite ` "v likvidaci""` before parsing.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"fifoexport/internal/config"
	"fifoexport/internal/parser/colmap"
	"fifoexport/internal/record"
)

// Reader is a record.Source over CSV input.
type Reader struct {
	cr        *csv.Reader
	columns   []string
	idx       []int // idx[target] = source field; nil passes fields through
	trim      bool
	emptyNull bool
	expected  int
	skipBad   bool

	eof     bool
	skipped int
}

// NewReader reads the header (when configured) and returns a Reader whose
// rows follow columns. With no columns the header, or the raw field order
// when there is no header, defines the row layout.
func NewReader(r io.Reader, columns []string, opt config.Options) (*Reader, error) {
	scrub := opt.Bool("stream_scrub_likvidaci", false)
	if scrub {
		r = newReplaceReader(r, scrubFromLikvidaci, scrubToLikvidaci)
	}

	cr := csv.NewReader(r)
	cr.Comma = opt.Rune("comma", ',')
	cr.Comment = opt.Rune("comment", 0)
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.Bool("lazy_quotes", scrub)
	cr.FieldsPerRecord = -1

	rd := &Reader{
		cr:        cr,
		columns:   columns,
		trim:      opt.Bool("trim_space", true),
		emptyNull: opt.Bool("empty_as_null", true),
		expected:  opt.Int("expected_fields", 0),
		skipBad:   opt.Bool("skip_malformed", false),
	}

	if !opt.Bool("has_header", true) {
		if len(columns) > 0 {
			rd.idx = colmap.Positional(columns)
		}
		return rd, nil
	}

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		rd.eof = true
		return rd, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	hdr = append([]string(nil), hdr...)
	cols, idx, err := colmap.Index(hdr, columns, opt.StringMap("header_map"))
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	rd.columns, rd.idx = cols, idx
	if rd.expected == 0 {
		rd.expected = len(hdr)
	}
	return rd, nil
}

// Columns returns the row layout.
func (r *Reader) Columns() []string { return r.columns }

// Skipped returns how many lines skip_malformed dropped so far.
func (r *Reader) Skipped() int { return r.skipped }

// Next returns the next data row. Row.Line is the physical line the record
// starts on.
func (r *Reader) Next(ctx context.Context) (*record.Row, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.eof {
			return nil, io.EOF
		}

		rec, err := r.cr.Read()
		if errors.Is(err, io.EOF) {
			r.eof = true
			return nil, io.EOF
		}
		if err != nil {
			if r.skipBad {
				r.skipped++
				continue
			}
			return nil, fmt.Errorf("csv: %w", err)
		}
		line, _ := r.cr.FieldPos(0)
		if r.expected > 0 && len(rec) != r.expected {
			if r.skipBad {
				r.skipped++
				continue
			}
			return nil, fmt.Errorf("csv: line %d: expected %d fields, got %d", line, r.expected, len(rec))
		}
		return r.row(rec, line), nil
	}
}

func (r *Reader) row(rec []string, line int) *record.Row {
	if r.idx == nil {
		row := record.GetRow(len(rec))
		row.Line = line
		for i, v := range rec {
			row.V[i] = r.value(v)
		}
		return row
	}
	row := record.GetRow(len(r.idx))
	row.Line = line
	for t, si := range r.idx {
		if si < 0 || si >= len(rec) {
			continue
		}
		row.V[t] = r.value(rec[si])
	}
	return row
}

func (r *Reader) value(v string) any {
	if r.trim {
		v = strings.TrimSpace(v)
	}
	if v == "" && r.emptyNull {
		return nil
	}
	return v
}
