// Package transformer coerces, validates and de-duplicates records on their
// way from a parser to the export driver.
//
// A Stage wraps a record.Source and is itself a record.Source, so rows are
// pulled one at a time and never buffered. Rows are transformed in place on
// their pooled values.
package transformer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"fifoexport/internal/record"
)

// Reject policies.
const (
	RejectFail = "fail"
	RejectSkip = "skip"
)

// Spec configures a Stage.
type Spec struct {
	// Columns is the positional column order of incoming rows.
	Columns []string
	Coerce  CoerceSpec
	// Required columns must be non-null after coercion.
	Required []string
	// Dedup lists key columns; only the first row per key is kept.
	Dedup []string
	// Trim strips surrounding whitespace (including NBSP) from string values.
	Trim bool
	// EmptyAsNull turns empty strings into nulls.
	EmptyAsNull bool
	// OnReject is RejectFail (default) or RejectSkip.
	OnReject string
}

// Empty reports whether the spec would leave every row untouched.
func (s Spec) Empty() bool {
	return len(s.Coerce.Types) == 0 && len(s.Required) == 0 && len(s.Dedup) == 0 && !s.Trim && !s.EmptyAsNull
}

// RejectError describes a row that failed coercion or validation.
type RejectError struct {
	Line   int
	Column string
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("line %d: column %q: %s", e.Line, e.Column, e.Reason)
}

// Stage is a transforming record.Source.
type Stage struct {
	src     record.Source
	columns []string
	plan    []coerceFunc
	reqIx   []int
	keyIx   []int
	seen    map[string]struct{}
	trim    bool
	nulls   bool
	skip    bool
	log     *zap.Logger

	key      strings.Builder
	rejected int64
	dupes    int64
}

// Wrap returns src unchanged when spec is empty and a Stage otherwise.
func Wrap(src record.Source, spec Spec, log *zap.Logger) (record.Source, error) {
	if spec.Empty() {
		return src, nil
	}
	st, err := New(src, spec, log)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// New compiles spec against its columns.
func New(src record.Source, spec Spec, log *zap.Logger) (*Stage, error) {
	if log == nil {
		log = zap.NewNop()
	}
	plan, err := compilePlan(spec.Columns, spec.Coerce)
	if err != nil {
		return nil, err
	}
	reqIx, err := indexes(spec.Columns, spec.Required, "required")
	if err != nil {
		return nil, err
	}
	keyIx, err := indexes(spec.Columns, spec.Dedup, "dedup")
	if err != nil {
		return nil, err
	}

	s := &Stage{
		src:     src,
		columns: spec.Columns,
		plan:    plan,
		reqIx:   reqIx,
		keyIx:   keyIx,
		trim:    spec.Trim,
		nulls:   spec.EmptyAsNull,
		log:     log.With(zap.String("component", "transformer")),
	}
	switch strings.ToLower(spec.OnReject) {
	case "", RejectFail:
	case RejectSkip:
		s.skip = true
	default:
		return nil, fmt.Errorf("transformer: unknown on_reject policy %q", spec.OnReject)
	}
	if len(keyIx) > 0 {
		s.seen = make(map[string]struct{})
	}
	return s, nil
}

func indexes(columns, names []string, what string) ([]int, error) {
	if len(names) == 0 {
		return nil, nil
	}
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}
	out := make([]int, 0, len(names))
	for _, n := range names {
		ix, ok := pos[n]
		if !ok {
			return nil, fmt.Errorf("%s references unknown column %q", what, n)
		}
		out = append(out, ix)
	}
	return out, nil
}

// Next implements record.Source.
func (s *Stage) Next(ctx context.Context) (*record.Row, error) {
	for {
		r, err := s.src.Next(ctx)
		if err != nil {
			return nil, err
		}
		rej := s.apply(r)
		if rej == nil && s.duplicate(r) {
			s.dupes++
			r.Free()
			continue
		}
		if rej == nil {
			return r, nil
		}
		r.Free()
		if !s.skip {
			return nil, rej
		}
		s.rejected++
		s.log.Debug("row rejected", zap.Int("line", rej.Line), zap.String("column", rej.Column), zap.String("reason", rej.Reason))
	}
}

// Rejected reports how many rows were skipped by validation.
func (s *Stage) Rejected() int64 { return s.rejected }

// Duplicates reports how many rows were dropped as duplicates.
func (s *Stage) Duplicates() int64 { return s.dupes }

// Close closes the wrapped source when it holds resources.
func (s *Stage) Close() error {
	if c, ok := s.src.(record.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Stage) apply(r *record.Row) *RejectError {
	if len(s.columns) > 0 && len(r.V) != len(s.columns) {
		return &RejectError{Line: r.Line, Column: "*", Reason: fmt.Sprintf("has %d fields, want %d", len(r.V), len(s.columns))}
	}
	for i := range r.V {
		str, isStr := r.V[i].(string)
		if !isStr {
			continue
		}
		var coerce coerceFunc
		if i < len(s.plan) {
			coerce = s.plan[i]
		}
		if s.trim || coerce != nil {
			str = trimSpace(str)
			r.V[i] = str
		}
		if str == "" && (s.nulls || coerce != nil) {
			r.V[i] = nil
			continue
		}
		if coerce == nil {
			continue
		}
		if reason, ok := coerce(&r.V[i], str); !ok {
			return &RejectError{Line: r.Line, Column: s.columns[i], Reason: fmt.Sprintf("%s: %q", reason, str)}
		}
	}
	for _, ix := range s.reqIx {
		if r.V[ix] == nil {
			return &RejectError{Line: r.Line, Column: s.columns[ix], Reason: "missing required value"}
		}
	}
	return nil
}

func (s *Stage) duplicate(r *record.Row) bool {
	if s.seen == nil {
		return false
	}
	s.key.Reset()
	for n, ix := range s.keyIx {
		if n > 0 {
			s.key.WriteByte('\x1f')
		}
		switch v := r.V[ix].(type) {
		case nil:
			s.key.WriteByte('\x00')
		case string:
			s.key.WriteString(v)
		default:
			fmt.Fprint(&s.key, v)
		}
	}
	k := s.key.String()
	if _, ok := s.seen[k]; ok {
		return true
	}
	s.seen[k] = struct{}{}
	return false
}

func trimSpace(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
}
