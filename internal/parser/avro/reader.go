// Package avro reads Avro object container files (OCF) with goavro. The
// writer schema embedded in the file drives decoding; top-level record fields
// are matched to target columns by canonical name.
//
// Values map as follows: unions are unwrapped to their branch value,
// timestamp and date logical types arrive as time.Time, decimals are
// rendered as exact decimal text, and nested records, arrays and maps are
// re-encoded as JSON text.
//
// Options: header_map (map) renames fields before matching.
package avro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/linkedin/goavro/v2"

	"fifoexport/internal/config"
	"fifoexport/internal/parser/colmap"
	"fifoexport/internal/record"
)

// Reader is a record.Source over an Avro OCF stream.
type Reader struct {
	ocf       *goavro.OCFReader
	columns   []string
	headerMap map[string]string
	n         int
}

// NewReader reads the OCF header from r. columns must not be empty.
func NewReader(r io.Reader, columns []string, opt config.Options) (*Reader, error) {
	if len(columns) == 0 {
		return nil, errors.New("avro: target columns are required")
	}
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("avro: read header: %w", err)
	}
	return &Reader{ocf: ocf, columns: columns, headerMap: opt.StringMap("header_map")}, nil
}

// Columns returns the row layout.
func (r *Reader) Columns() []string { return r.columns }

// Schema returns the writer schema from the file header.
func (r *Reader) Schema() string { return r.ocf.Codec().Schema() }

// Next returns the next datum. Row.Line is the 1-based datum number.
func (r *Reader) Next(ctx context.Context) (*record.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.ocf.Scan() {
		if err := r.ocf.Err(); err != nil {
			return nil, fmt.Errorf("avro: datum %d: %w", r.n+1, err)
		}
		return nil, io.EOF
	}
	datum, err := r.ocf.Read()
	if err != nil {
		return nil, fmt.Errorf("avro: datum %d: %w", r.n+1, err)
	}
	r.n++

	fields, ok := datum.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("avro: datum %d is %T, want record", r.n, datum)
	}
	canon := make(map[string]any, len(fields))
	for k, v := range fields {
		canon[colmap.Canonical(k, r.headerMap)] = v
	}

	row := record.GetRow(len(r.columns))
	row.Line = r.n
	for i, col := range r.columns {
		v, err := native(canon[col])
		if err != nil {
			row.Free()
			return nil, fmt.Errorf("avro: datum %d: column %s: %w", r.n, col, err)
		}
		row.V[i] = v
	}
	return row, nil
}

// native converts a goavro value into something delimited.Encoder formats
// faithfully.
func native(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		// A union arrives as a single-entry map keyed by the branch type name.
		if len(t) == 1 {
			for branch, inner := range t {
				if isUnionBranch(branch) {
					return native(inner)
				}
			}
		}
		return asJSON(t)
	case []any:
		return asJSON(t)
	case *big.Rat:
		return decimalText(t), nil
	default:
		return v, nil
	}
}

func isUnionBranch(name string) bool {
	switch name {
	case "null", "boolean", "int", "long", "float", "double", "bytes", "string",
		"int.date", "long.timestamp-millis", "long.timestamp-micros",
		"bytes.decimal", "fixed.decimal", "int.time-millis", "long.time-micros":
		return true
	}
	// Namespaced record, enum and fixed types.
	return strings.Contains(name, ".")
}

func asJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// decimalText renders r exactly. Avro decimals always have a finite decimal
// expansion, so trimming the padded form loses nothing.
func decimalText(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	s := r.FloatString(38)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
