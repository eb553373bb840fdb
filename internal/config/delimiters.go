package config

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"fifoexport/internal/delimited"
)

// Delimiters is the user-facing form of delimited.DelimiterSet. Each field is
// a single character, an escape such as "\t", or a hex code such as "0x01".
// Empty fields keep the defaults (',' '\n' '\\', no enclosure).
type Delimiters struct {
	Field           string `mapstructure:"field"`
	Record          string `mapstructure:"record"`
	Enclose         string `mapstructure:"enclose"`
	Escape          string `mapstructure:"escape"`
	EncloseRequired bool   `mapstructure:"enclose_required"`
}

// Set parses d. Field, record and escape fall back to
// delimited.DefaultDelimiters; "none" disables the escape character.
func (d Delimiters) Set() (delimited.DelimiterSet, error) {
	ds := delimited.DefaultDelimiters
	ds.EncloseRequired = d.EncloseRequired

	for _, f := range []struct {
		name string
		in   string
		dst  *rune
	}{
		{"field", d.Field, &ds.Field},
		{"record", d.Record, &ds.Record},
		{"enclose", d.Enclose, &ds.Enclose},
		{"escape", d.Escape, &ds.Escape},
	} {
		if f.in == "" {
			continue
		}
		if strings.EqualFold(f.in, "none") {
			*f.dst = 0
			continue
		}
		r, err := ParseRune(f.in)
		if err != nil {
			return delimited.DelimiterSet{}, fmt.Errorf("delimiters.%s: %w", f.name, err)
		}
		*f.dst = r
	}
	return ds, nil
}

// ParseRune parses one character written literally ("|"), as a Go escape
// ("\t", "\x01", "¦") or as a hex code ("0x1f").
func ParseRune(s string) (rune, error) {
	if s == "" {
		return 0, fmt.Errorf("empty character")
	}
	if r, size := utf8.DecodeRuneInString(s); size == len(s) && r != utf8.RuneError {
		return r, nil
	}
	if h, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		n, err := strconv.ParseUint(h, 16, 32)
		if err != nil || n > utf8.MaxRune {
			return 0, fmt.Errorf("invalid hex character %q", s)
		}
		return rune(n), nil
	}
	r, _, tail, err := strconv.UnquoteChar(s, '\'')
	if err != nil || tail != "" {
		return 0, fmt.Errorf("%q is not a single character", s)
	}
	return r, nil
}
