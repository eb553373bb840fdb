// Package text reads delimited text produced by other unload tools: Netezza
// external tables, PostgreSQL COPY text, mysqldump --tab. It is the inverse
// of delimited.Encoder, so an unload from one warehouse can be re-encoded for
// another.
//
// Options:
//   - field, record, enclose, escape (char): input delimiters; defaults
//     ',' '\n' none '\\'.
//   - null (string, default `\N`): token read as NULL.
//   - has_header (bool, default false), header_map (map).
//   - trim_cr (bool, default true): drop a trailing '\r' (CRLF input).
package text

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"fifoexport/internal/config"
	"fifoexport/internal/delimited"
	"fifoexport/internal/parser/colmap"
	"fifoexport/internal/record"
)

// Reader is a record.Source over delimited text.
type Reader struct {
	dec     *delimited.Decoder
	null    string
	columns []string
	idx     []int
	trimCR  bool
	eof     bool
}

// NewReader returns a Reader for r.
func NewReader(r io.Reader, columns []string, opt config.Options) (*Reader, error) {
	ds := delimited.DelimiterSet{
		Field:   opt.Rune("field", ','),
		Record:  opt.Rune("record", '\n'),
		Enclose: opt.Rune("enclose", 0),
		Escape:  opt.Rune("escape", '\\'),
	}
	if ds.Field == ds.Record || (ds.Enclose != 0 && ds.Enclose == ds.Field) {
		return nil, fmt.Errorf("text: ambiguous input delimiters %s", ds)
	}
	dialect := delimited.Dialect{Name: "text", NullToken: opt.String("null", `\N`)}

	rd := &Reader{
		dec:     delimited.NewDecoder(r, ds, dialect),
		null:    dialect.NullToken,
		columns: columns,
		trimCR:  opt.Bool("trim_cr", true),
	}
	if len(columns) > 0 {
		rd.idx = colmap.Positional(columns)
	}
	if !opt.Bool("has_header", false) {
		return rd, nil
	}

	hdr, err := rd.read()
	if errors.Is(err, io.EOF) {
		rd.eof = true
		return rd, nil
	}
	if err != nil {
		return nil, fmt.Errorf("text: read header: %w", err)
	}
	names := make([]string, len(hdr))
	for i, h := range hdr {
		s, _ := h.(string)
		names[i] = s
	}
	rd.columns, rd.idx, err = colmap.Index(names, columns, opt.StringMap("header_map"))
	if err != nil {
		return nil, fmt.Errorf("text: %w", err)
	}
	return rd, nil
}

// Columns returns the row layout.
func (r *Reader) Columns() []string { return r.columns }

// Next returns the next record. Row.Line is the 1-based record number,
// header included.
func (r *Reader) Next(ctx context.Context) (*record.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.eof {
		return nil, io.EOF
	}
	fields, err := r.read()
	if errors.Is(err, io.EOF) {
		r.eof = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("text: %w", err)
	}

	if r.idx == nil {
		row := record.GetRow(len(fields))
		row.Line = r.dec.Record()
		copy(row.V, fields)
		return row, nil
	}
	row := record.GetRow(len(r.idx))
	row.Line = r.dec.Record()
	for t, si := range r.idx {
		if si >= 0 && si < len(fields) {
			row.V[t] = fields[si]
		}
	}
	return row, nil
}

func (r *Reader) read() ([]any, error) {
	fields, err := r.dec.Read()
	if err != nil || !r.trimCR || len(fields) == 0 {
		return fields, err
	}
	last := len(fields) - 1
	if s, ok := fields[last].(string); ok && strings.HasSuffix(s, "\r") {
		s = strings.TrimSuffix(s, "\r")
		if s == r.null {
			fields[last] = nil
		} else {
			fields[last] = s
		}
	}
	return fields, nil
}
