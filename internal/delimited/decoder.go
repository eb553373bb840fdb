package delimited

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Decoder reads records written by an Encoder with the same DelimiterSet and
// Dialect. Fields come back as string, or nil for the null token.
type Decoder struct {
	r       *bufio.Reader
	ds      DelimiterSet
	dialect Dialect
	record  int
	// unletter inverts Dialect.EscapeLetters.
	unletter map[rune]rune

	text strings.Builder
	raw  strings.Builder
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader, ds DelimiterSet, d Dialect) *Decoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 64*1024)
	}
	var unletter map[rune]rune
	if len(d.EscapeLetters) > 0 {
		unletter = make(map[rune]rune, len(d.EscapeLetters))
		for c, l := range d.EscapeLetters {
			unletter[l] = c
		}
	}
	return &Decoder{r: br, ds: ds, dialect: d, unletter: unletter}
}

// Record returns the 1-based number of the record last returned by Read.
func (d *Decoder) Record() int { return d.record }

// Read returns the next record. It returns io.EOF when the input is exhausted
// at a record boundary. A final record without a trailing record delimiter is
// still returned.
func (d *Decoder) Read() ([]any, error) {
	var (
		fields   []any
		started  bool
		enclosed bool
		wasEncl  bool
		literal  bool
	)
	d.text.Reset()
	d.raw.Reset()

	endField := func() {
		if !wasEncl && d.raw.String() == d.dialect.NullToken {
			fields = append(fields, nil)
		} else {
			fields = append(fields, d.text.String())
		}
		d.text.Reset()
		d.raw.Reset()
		wasEncl = false
	}

	quoteDoubling := d.ds.Enclose != 0 && d.ds.Escape == d.ds.Enclose

	for {
		r, _, err := d.r.ReadRune()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			if !started {
				return nil, io.EOF
			}
			if enclosed || literal {
				return nil, fmt.Errorf("delimited: record %d: %w", d.record+1, io.ErrUnexpectedEOF)
			}
			endField()
			d.record++
			return fields, nil
		}
		started = true

		if literal {
			if c, ok := d.unletter[r]; ok && !enclosed {
				d.text.WriteRune(c)
			} else {
				d.text.WriteRune(r)
			}
			d.raw.WriteRune(r)
			literal = false
			continue
		}

		if enclosed {
			switch {
			case quoteDoubling && r == d.ds.Enclose:
				next, _, perr := d.r.ReadRune()
				if perr == nil && next == d.ds.Enclose {
					d.text.WriteRune(r)
					continue
				}
				if perr == nil {
					_ = d.r.UnreadRune()
				}
				enclosed = false
			case r == d.ds.Escape:
				literal = true
			case r == d.ds.Enclose:
				enclosed = false
			default:
				d.text.WriteRune(r)
			}
			continue
		}

		switch {
		case r == d.ds.Field:
			endField()
		case r == d.ds.Record:
			endField()
			d.record++
			return fields, nil
		case d.ds.Enclose != 0 && r == d.ds.Enclose && !wasEncl && d.raw.Len() == 0 && d.text.Len() == 0:
			enclosed = true
			wasEncl = true
		case d.ds.Escape != 0 && !quoteDoubling && r == d.ds.Escape:
			d.raw.WriteRune(r)
			literal = true
		default:
			d.text.WriteRune(r)
			d.raw.WriteRune(r)
		}
	}
}
