package record

import (
	"context"
	"io"
)

// Source produces rows one at a time. Next returns io.EOF after the last row.
// The caller owns each returned Row and must Free it.
type Source interface {
	Next(ctx context.Context) (*Row, error)
}

// Closer is implemented by sources holding resources beyond their reader.
type Closer interface {
	Source
	Close() error
}

// Slice is an in-memory Source over positional values.
type Slice struct {
	rows [][]any
	pos  int
}

// NewSlice returns a Source yielding rows in order.
func NewSlice(rows ...[]any) *Slice { return &Slice{rows: rows} }

// Next implements Source.
func (s *Slice) Next(ctx context.Context) (*Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	src := s.rows[s.pos]
	s.pos++
	r := GetRow(len(src))
	copy(r.V, src)
	r.Line = s.pos
	return r, nil
}

// Func adapts a function to Source.
type Func func(ctx context.Context) (*Row, error)

// Next implements Source.
func (f Func) Next(ctx context.Context) (*Row, error) { return f(ctx) }

// Drain reads src to the end and returns the values of every row. It is meant
// for tests and small inputs.
func Drain(ctx context.Context, src Source) ([][]any, error) {
	var out [][]any
	for {
		r, err := src.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, append([]any(nil), r.V...))
		r.Free()
	}
}
