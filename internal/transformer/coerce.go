package transformer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CoerceSpec describes how to coerce string fields into typed values.
type CoerceSpec struct {
	// Types maps column name -> "int" | "float" | "bool" | "date" |
	// "timestamp" | "text". Missing columns are passed through untouched.
	Types map[string]string
	// Layout is an optional date layout (e.g. "02.01.2006").
	Layout string
	// Truthy/Falsy replace the default boolean vocabulary when set.
	Truthy []string
	Falsy  []string
}

// coerceFunc converts s into *dst. It reports a reason when s is invalid.
type coerceFunc func(dst *any, s string) (reason string, ok bool)

// compilePlan builds one coercer per positional column so the hot loop never
// looks anything up by name. Columns without a coercion get a nil entry.
func compilePlan(columns []string, spec CoerceSpec) ([]coerceFunc, error) {
	plan := make([]coerceFunc, len(columns))

	truthy := lowerSet(spec.Truthy)
	falsy := lowerSet(spec.Falsy)
	custom := len(truthy) > 0 || len(falsy) > 0

	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}
	for col, typ := range spec.Types {
		i, ok := pos[col]
		if !ok {
			return nil, fmt.Errorf("coerce references unknown column %q", col)
		}
		switch strings.ToLower(typ) {
		case "int":
			plan[i] = func(dst *any, s string) (string, bool) {
				v, ok := toIntFast(s)
				if !ok {
					return "not an integer", false
				}
				*dst = v
				return "", true
			}
		case "float":
			plan[i] = func(dst *any, s string) (string, bool) {
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return "not a number", false
				}
				*dst = v
				return "", true
			}
		case "bool":
			plan[i] = func(dst *any, s string) (string, bool) {
				v, ok := toBoolFast(s, custom, truthy, falsy)
				if !ok {
					return "not a boolean", false
				}
				*dst = v
				return "", true
			}
		case "date":
			layout := spec.Layout
			plan[i] = func(dst *any, s string) (string, bool) {
				t, ok := parseDate(s, layout)
				if !ok {
					return "not a date", false
				}
				*dst = t
				return "", true
			}
		case "timestamp":
			layout := spec.Layout
			plan[i] = func(dst *any, s string) (string, bool) {
				t, ok := parseTimestamp(s, layout)
				if !ok {
					return "not a timestamp", false
				}
				*dst = t
				return "", true
			}
		case "", "text", "string":
		default:
			return nil, fmt.Errorf("coerce: column %q has unsupported type %q", col, typ)
		}
	}
	return plan, nil
}

func lowerSet(in []string) map[string]struct{} {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	for _, s := range in {
		m[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return m
}

// toIntFast only falls back to float parsing when the field contains a '.'
// (inputs like "42.0").
func toIntFast(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return 0, false
}

func toBoolFast(s string, custom bool, truthy, falsy map[string]struct{}) (bool, bool) {
	ls := strings.ToLower(s)
	if custom {
		if _, ok := truthy[ls]; ok {
			return true, true
		}
		if _, ok := falsy[ls]; ok {
			return false, true
		}
		return false, false
	}
	switch ls {
	case "1", "t", "true", "yes", "y", "ano":
		return true, true
	case "0", "f", "false", "no", "n", "ne":
		return false, true
	default:
		return false, false
	}
}

func parseDate(s, layout string) (time.Time, bool) {
	if layout == "" || layout == "02.01.2006" {
		if t, ok := parseCZDate(s); ok {
			return t, true
		}
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"02.01.2006 15:04:05",
}

func parseTimestamp(s, layout string) (time.Time, bool) {
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return parseDate(s, "")
}

// parseCZDate is a zero-allocation parser for "02.01.2006" (DD.MM.YYYY).
func parseCZDate(s string) (time.Time, bool) {
	if len(s) != 10 || s[2] != '.' || s[5] != '.' {
		return time.Time{}, false
	}
	d1, d0 := s[0]-'0', s[1]-'0'
	m1, m0 := s[3]-'0', s[4]-'0'
	y3, y2, y1, y0 := s[6]-'0', s[7]-'0', s[8]-'0', s[9]-'0'
	if d1 > 9 || d0 > 9 || m1 > 9 || m0 > 9 || y3 > 9 || y2 > 9 || y1 > 9 || y0 > 9 {
		return time.Time{}, false
	}
	day := int(d1)*10 + int(d0)
	mon := int(m1)*10 + int(m0)
	year := int(y3)*1000 + int(y2)*100 + int(y1)*10 + int(y0)
	if mon < 1 || mon > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(mon), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
