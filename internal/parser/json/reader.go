// Package json streams JSON records. Accepted shapes:
//
//   - a root array of objects: [ {...}, {...} ]
//   - an envelope object whose records sit in one array field:
//     { "meta": {...}, "records": [ {...} ] }
//   - a single object, treated as one record
//   - any of the above followed by more top-level objects (NDJSON)
//
// Arrays are streamed element by element. Numbers are kept as json.Number so
// no precision is lost on the way to the warehouse; nested objects and arrays
// are re-encoded as compact JSON text.
//
// Options:
//   - header_map (map): source key -> column name.
//   - records_key (string): envelope field holding the records. Without it
//     the first field holding an array of objects is used, which requires
//     buffering the envelope.
//   - ndjson (bool): every top-level value is a record; no envelope detection.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"fifoexport/internal/config"
	"fifoexport/internal/parser/colmap"
	"fifoexport/internal/record"
)

type mode int

const (
	modeStart mode = iota
	modeArray         // inside a top-level or envelope array
	modeBuffered      // replaying an envelope that had to be buffered
	modeStream        // NDJSON: one value per Decode
	modeDone
)

// Reader is a record.Source over JSON input.
type Reader struct {
	dec        *json.Decoder
	columns    []string
	headerMap  map[string]string
	recordsKey string
	ndjson     bool

	mode     mode
	envelope bool // the current array belongs to an envelope
	buffered []map[string]any
	n        int
}

// NewReader returns a Reader producing rows in columns order. columns must
// not be empty: JSON objects carry no field order of their own.
func NewReader(r io.Reader, columns []string, opt config.Options) (*Reader, error) {
	if len(columns) == 0 {
		return nil, errors.New("json: target columns are required")
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &Reader{
		dec:        dec,
		columns:    columns,
		headerMap:  opt.StringMap("header_map"),
		recordsKey: opt.String("records_key", ""),
		ndjson:     opt.Bool("ndjson", false),
	}, nil
}

// Columns returns the row layout.
func (r *Reader) Columns() []string { return r.columns }

// Next returns the next record. Row.Line is the 1-based record number.
func (r *Reader) Next(ctx context.Context) (*record.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj, err := r.nextObject()
	if err != nil {
		return nil, err
	}
	r.n++
	return r.row(obj)
}

func (r *Reader) nextObject() (map[string]any, error) {
	for {
		switch r.mode {
		case modeStart:
			if r.ndjson {
				r.mode = modeStream
				continue
			}
			obj, err := r.start()
			if err != nil || obj != nil {
				return obj, err
			}

		case modeArray:
			if r.dec.More() {
				var obj map[string]any
				if err := r.dec.Decode(&obj); err != nil {
					return nil, r.wrap(err)
				}
				if obj == nil {
					continue
				}
				return obj, nil
			}
			if _, err := r.dec.Token(); err != nil { // ]
				return nil, r.wrap(err)
			}
			if r.envelope {
				// The rest of the envelope is metadata.
				r.mode = modeDone
			} else {
				r.mode = modeStream
			}

		case modeBuffered:
			if len(r.buffered) > 0 {
				obj := r.buffered[0]
				r.buffered = r.buffered[1:]
				return obj, nil
			}
			r.mode = modeStream

		case modeStream:
			var v any
			if err := r.dec.Decode(&v); err != nil {
				if errors.Is(err, io.EOF) {
					r.mode = modeDone
					continue
				}
				return nil, r.wrap(err)
			}
			obj, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("json: record %d: top-level value is %T, want object", r.n+1, v)
			}
			return obj, nil

		case modeDone:
			return nil, io.EOF
		}
	}
}

// start inspects the first token. It returns a record only for a single
// buffered object; otherwise it just switches mode.
func (r *Reader) start() (map[string]any, error) {
	tok, err := r.dec.Token()
	if errors.Is(err, io.EOF) {
		r.mode = modeDone
		return nil, nil
	}
	if err != nil {
		return nil, r.wrap(err)
	}
	switch tok {
	case json.Delim('['):
		r.mode = modeArray
		return nil, nil
	case json.Delim('{'):
		if r.recordsKey != "" {
			return nil, r.seekRecords()
		}
		obj, err := r.readObjectBody()
		if err != nil {
			return nil, err
		}
		if recs := findObjectSlice(obj); recs != nil {
			r.buffered = recs
			r.mode = modeBuffered
			return nil, nil
		}
		r.mode = modeStream
		return obj, nil
	default:
		return nil, fmt.Errorf("json: unsupported root value %v (want object or array)", tok)
	}
}

// seekRecords skips envelope fields until records_key and enters its array.
func (r *Reader) seekRecords() error {
	for r.dec.More() {
		tok, err := r.dec.Token()
		if err != nil {
			return r.wrap(err)
		}
		if key, _ := tok.(string); key == r.recordsKey {
			tok, err := r.dec.Token()
			if err != nil {
				return r.wrap(err)
			}
			if tok != json.Delim('[') {
				return fmt.Errorf("json: %q is not an array", r.recordsKey)
			}
			r.mode, r.envelope = modeArray, true
			return nil
		}
		var skip json.RawMessage
		if err := r.dec.Decode(&skip); err != nil {
			return r.wrap(err)
		}
	}
	return fmt.Errorf("json: records_key %q not found", r.recordsKey)
}

func (r *Reader) readObjectBody() (map[string]any, error) {
	obj := map[string]any{}
	for r.dec.More() {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, r.wrap(err)
		}
		key, _ := tok.(string)
		var v any
		if err := r.dec.Decode(&v); err != nil {
			return nil, r.wrap(err)
		}
		obj[key] = v
	}
	if _, err := r.dec.Token(); err != nil { // }
		return nil, r.wrap(err)
	}
	return obj, nil
}

func (r *Reader) wrap(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("json: record %d (offset %d): %w", r.n+1, r.dec.InputOffset(), err)
}

func (r *Reader) row(obj map[string]any) (*record.Row, error) {
	canon := obj
	if len(r.headerMap) > 0 || needsCanon(obj) {
		canon = make(map[string]any, len(obj))
		for k, v := range obj {
			canon[colmap.Canonical(k, r.headerMap)] = v
		}
	}
	row := record.GetRow(len(r.columns))
	row.Line = r.n
	for i, col := range r.columns {
		v, err := scalar(canon[col])
		if err != nil {
			row.Free()
			return nil, fmt.Errorf("json: record %d: column %s: %w", r.n, col, err)
		}
		row.V[i] = v
	}
	return row, nil
}

// needsCanon reports whether any key differs from its canonical form, so the
// common case of already-clean keys skips the copy.
func needsCanon(obj map[string]any) bool {
	for k := range obj {
		if colmap.Canonical(k, nil) != k {
			return true
		}
	}
	return false
}

func scalar(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

// findObjectSlice returns the records of an envelope: the value of the first
// field, in key order, that is a non-empty array of objects.
func findObjectSlice(root map[string]any) []map[string]any {
	keys := make([]string, 0, len(root))
	for k := range root {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw, ok := root[k].([]any)
		if !ok || len(raw) == 0 {
			continue
		}
		objects := make([]map[string]any, 0, len(raw))
		valid := true
		for _, elem := range raw {
			if elem == nil {
				continue
			}
			m, ok := elem.(map[string]any)
			if !ok {
				valid = false
				break
			}
			objects = append(objects, m)
		}
		if valid && len(objects) > 0 {
			return objects
		}
	}
	return nil
}
