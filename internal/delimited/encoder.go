package delimited

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// TimestampLayout is used for time.Time values. Seconds are always present;
// the fraction is trimmed of trailing zeros.
const TimestampLayout = "2006-01-02 15:04:05.999999999"

// Encoder converts positional records into delimited bytes. The DelimiterSet
// must already be normalized for the dialect.
//
// An Encoder reuses one output buffer: the slice returned by Encode is valid
// only until the next call. It is not safe for concurrent use.
type Encoder struct {
	ds      DelimiterSet
	dialect Dialect
	special map[rune]struct{}
	buf     []byte
}

// NewEncoder returns an Encoder for ds and d.
func NewEncoder(ds DelimiterSet, d Dialect) *Encoder {
	special := map[rune]struct{}{
		ds.Field:  {},
		ds.Record: {},
	}
	if ds.Escape != 0 {
		special[ds.Escape] = struct{}{}
	}
	if ds.Enclose != 0 {
		special[ds.Enclose] = struct{}{}
	}
	for _, r := range d.ExtraEscapes {
		special[r] = struct{}{}
	}
	return &Encoder{ds: ds, dialect: d, special: special, buf: make([]byte, 0, 256)}
}

// Delimiters returns the set the encoder writes with.
func (e *Encoder) Delimiters() DelimiterSet { return e.ds }

// Encode renders one record, including the trailing record delimiter.
func (e *Encoder) Encode(values []any) ([]byte, error) {
	e.buf = e.buf[:0]
	for i, v := range values {
		if i > 0 {
			e.buf = utf8.AppendRune(e.buf, e.ds.Field)
		}
		if err := e.appendValue(v); err != nil {
			return nil, fmt.Errorf("delimited: field %d: %w", i, err)
		}
	}
	e.buf = utf8.AppendRune(e.buf, e.ds.Record)
	return e.buf, nil
}

func (e *Encoder) appendValue(v any) error {
	s, isNull, err := e.format(v)
	if err != nil {
		return err
	}
	if isNull {
		e.buf = append(e.buf, e.dialect.NullToken...)
		return nil
	}
	e.appendText(s)
	return nil
}

// format turns a value into its textual form. Numeric values keep exactly the
// precision they arrived with.
func (e *Encoder) format(v any) (string, bool, error) {
	switch t := v.(type) {
	case nil:
		return "", true, nil
	case string:
		return t, false, nil
	case *string:
		if t == nil {
			return "", true, nil
		}
		return *t, false, nil
	case []byte:
		if t == nil {
			return "", true, nil
		}
		return string(t), false, nil
	case bool:
		return e.formatBool(t), false, nil
	case int:
		return strconv.Itoa(t), false, nil
	case int8:
		return strconv.FormatInt(int64(t), 10), false, nil
	case int16:
		return strconv.FormatInt(int64(t), 10), false, nil
	case int32:
		return strconv.FormatInt(int64(t), 10), false, nil
	case int64:
		return strconv.FormatInt(t, 10), false, nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), false, nil
	case uint8:
		return strconv.FormatUint(uint64(t), 10), false, nil
	case uint16:
		return strconv.FormatUint(uint64(t), 10), false, nil
	case uint32:
		return strconv.FormatUint(uint64(t), 10), false, nil
	case uint64:
		return strconv.FormatUint(t, 10), false, nil
	case float32:
		return formatFloat(float64(t), 32), false, nil
	case float64:
		return formatFloat(t, 64), false, nil
	case json.Number:
		return t.String(), false, nil
	case *big.Int:
		if t == nil {
			return "", true, nil
		}
		return t.String(), false, nil
	case *big.Float:
		if t == nil {
			return "", true, nil
		}
		return t.Text('f', -1), false, nil
	case time.Time:
		return t.Format(TimestampLayout), false, nil
	case *time.Time:
		if t == nil {
			return "", true, nil
		}
		return t.Format(TimestampLayout), false, nil
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return "", false, err
		}
		return e.format(dv)
	case fmt.Stringer:
		return t.String(), false, nil
	default:
		return fmt.Sprint(t), false, nil
	}
}

func (e *Encoder) formatBool(b bool) string {
	switch e.dialect.Bools {
	case BoolTF:
		if b {
			return "t"
		}
		return "f"
	case BoolOneZero:
		if b {
			return "1"
		}
		return "0"
	default:
		if b {
			return "TRUE"
		}
		return "FALSE"
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}

// appendText writes a non-null value, escaping or enclosing as the set
// requires. Invalid UTF-8 is replaced so the output is always valid UTF-8.
func (e *Encoder) appendText(s string) {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	if e.ds.Enclose != 0 {
		e.appendEnclosed(s)
		return
	}

	// A value spelled like the null token must not read back as null.
	guardNull := s == e.dialect.NullToken
	for i, r := range s {
		if _, ok := e.special[r]; ok || (guardNull && i == 0) {
			e.buf = utf8.AppendRune(e.buf, e.ds.Escape)
			if l, ok := e.dialect.EscapeLetters[r]; ok {
				e.buf = utf8.AppendRune(e.buf, l)
				continue
			}
		}
		e.buf = utf8.AppendRune(e.buf, r)
	}
}

func (e *Encoder) appendEnclosed(s string) {
	need := e.ds.EncloseRequired || s == e.dialect.NullToken
	if !need {
		for _, r := range s {
			if _, ok := e.special[r]; ok {
				need = true
				break
			}
		}
	}
	if !need {
		e.buf = append(e.buf, s...)
		return
	}

	e.buf = utf8.AppendRune(e.buf, e.ds.Enclose)
	for _, r := range s {
		if r == e.ds.Enclose || r == e.ds.Escape {
			e.buf = utf8.AppendRune(e.buf, e.ds.Escape)
		}
		e.buf = utf8.AppendRune(e.buf, r)
	}
	e.buf = utf8.AppendRune(e.buf, e.ds.Enclose)
}
