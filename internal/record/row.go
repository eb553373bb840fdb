// Package record defines the positional rows that flow from an input parser to
// the export driver, and the pull interface that produces them.
package record

import "sync"

// Row is a pooled positional record.
//
// Contract:
//   - The producer writes into r.V[0:colCount] (no re-slice growth).
//   - The consumer calls r.Free() once the row has been encoded.
//   - Do not retain references to r or r.V after Free.
type Row struct {
	// Line is the 1-based position of the record in its input, used in
	// error messages. Zero when unknown.
	Line int
	V    []any
}

var rowPool sync.Pool

// GetRow returns a pooled Row with length colCount. All elements are nil.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		clear(r.V)
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool. The caller must not use r after Free.
func (r *Row) Free() {
	if r == nil {
		return
	}
	rowPool.Put(r)
}
