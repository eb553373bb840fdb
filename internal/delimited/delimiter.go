// Package delimited renders records into the delimited text format that
// warehouse bulk loaders read, and parses that format back.
//
// A DelimiterSet is what the user asked for; a Dialect is what the target
// loader can actually accept. Normalize reconciles the two once per export
// invocation and reports every downgrade as a Warning so the caller can log it
// exactly once instead of once per record.
//
// Everything in this package is pure: no I/O, no logging, no global state.
package delimited

import (
	"fmt"
	"unicode/utf8"
)

// DelimiterSet describes how fields and records are separated and protected.
// A zero rune means "not set".
type DelimiterSet struct {
	// Field separates values within a record (e.g. ',').
	Field rune
	// Record terminates each record (e.g. '\n').
	Record rune
	// Enclose wraps values that contain special characters (e.g. '"').
	Enclose rune
	// Escape precedes special characters inside values (e.g. '\\').
	Escape rune
	// EncloseRequired encloses every non-null value, not only the ones that
	// need it.
	EncloseRequired bool
}

// DefaultDelimiters is the set used when configuration leaves everything
// unset: comma separated, newline terminated, backslash escaped.
var DefaultDelimiters = DelimiterSet{Field: ',', Record: '\n', Escape: '\\'}

// String renders the set for logs, e.g. `field=',' record='\n' escape='\\'`.
func (d DelimiterSet) String() string {
	return fmt.Sprintf("field=%q record=%q enclose=%q escape=%q enclose_required=%t",
		d.Field, d.Record, d.Enclose, d.Escape, d.EncloseRequired)
}

// BoolStyle selects how boolean values are spelled in the output.
type BoolStyle int

const (
	// BoolTrueFalse renders TRUE / FALSE.
	BoolTrueFalse BoolStyle = iota
	// BoolTF renders t / f.
	BoolTF
	// BoolOneZero renders 1 / 0.
	BoolOneZero
)

// Dialect captures the fixed capabilities of one warehouse bulk loader.
type Dialect struct {
	// Name is used in warnings, e.g. "netezza".
	Name string

	// Escape is the only escape character the loader understands. Zero means
	// the loader has no escape mechanism and special characters can only be
	// protected by enclosure, with the enclosing character doubled inside.
	Escape rune

	// SupportsEnclose reports whether the loader understands enclosed fields.
	SupportsEnclose bool

	// Enclose is the enclosing character forced on when the dialect has no
	// escape mechanism and the configuration did not pick one.
	Enclose rune

	// Record, when non-zero, is the only record delimiter the loader accepts.
	Record rune

	// NullToken is written for nil values.
	NullToken string

	// Bools selects the boolean spelling.
	Bools BoolStyle

	// ExtraEscapes lists characters that must be escaped even though they are
	// not delimiters (carriage return for loaders that treat it as a line end).
	ExtraEscapes []rune

	// EscapeLetters spells escaped characters as a letter after the escape
	// character, e.g. newline as `\n` in Postgres text format. Characters
	// not listed are escaped as themselves.
	EscapeLetters map[rune]rune
}

// Warning is a configuration downgrade that the caller should surface once.
type Warning struct {
	Setting string
	Message string
}

func (w Warning) String() string { return w.Setting + ": " + w.Message }

// Normalize reconciles ds with the capabilities of d.
//
// Settings the dialect cannot honor are replaced and reported as warnings
// rather than failing the export. Settings that would make the output
// ambiguous (the same character used for two roles) are errors.
func Normalize(ds DelimiterSet, d Dialect) (DelimiterSet, []Warning, error) {
	var warns []Warning

	if ds.Field == 0 {
		ds.Field = DefaultDelimiters.Field
	}
	if ds.Record == 0 {
		ds.Record = DefaultDelimiters.Record
	}

	if ds.Enclose != 0 && !d.SupportsEnclose {
		warns = append(warns, Warning{
			Setting: "enclosed_by",
			Message: fmt.Sprintf("%s does not support enclosed fields; ignoring %q", d.Name, ds.Enclose),
		})
		ds.Enclose = 0
		ds.EncloseRequired = false
	}
	if ds.EncloseRequired && ds.Enclose == 0 && d.Enclose == 0 {
		ds.EncloseRequired = false
	}

	switch {
	case d.Escape != 0:
		if ds.Escape != 0 && ds.Escape != d.Escape {
			warns = append(warns, Warning{
				Setting: "escaped_by",
				Message: fmt.Sprintf("%s only supports %q as an escape character; ignoring %q", d.Name, d.Escape, ds.Escape),
			})
		}
		ds.Escape = d.Escape
	default:
		if ds.Enclose == 0 {
			ds.Enclose = d.Enclose
		}
		if ds.Escape != 0 && ds.Escape != ds.Enclose {
			warns = append(warns, Warning{
				Setting: "escaped_by",
				Message: fmt.Sprintf("%s has no escape character; quotes are doubled instead of using %q", d.Name, ds.Escape),
			})
		}
		ds.Escape = ds.Enclose
	}

	if d.Record != 0 && ds.Record != d.Record {
		warns = append(warns, Warning{
			Setting: "lines_terminated_by",
			Message: fmt.Sprintf("%s only supports %q as a record delimiter; ignoring %q", d.Name, d.Record, ds.Record),
		})
		ds.Record = d.Record
	}

	if err := ds.validate(); err != nil {
		return ds, warns, err
	}
	return ds, warns, nil
}

// validate rejects sets in which one character plays two roles.
func (d DelimiterSet) validate() error {
	if d.Escape == 0 && d.Enclose == 0 {
		return fmt.Errorf("delimited: neither an escape nor an enclosing character is available")
	}
	for _, r := range []rune{d.Field, d.Record, d.Enclose, d.Escape} {
		if r != 0 && !utf8.ValidRune(r) {
			return fmt.Errorf("delimited: invalid rune %U", r)
		}
	}
	if d.Field == d.Record {
		return fmt.Errorf("delimited: field and record delimiter are both %q", d.Field)
	}
	for _, r := range []rune{d.Enclose, d.Escape} {
		if r != 0 && (r == d.Field || r == d.Record) {
			return fmt.Errorf("delimited: %q is used both as a delimiter and for quoting", r)
		}
	}
	return nil
}
