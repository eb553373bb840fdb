package warehouse

import (
	"fmt"
	"strconv"
	"strings"
)

// OptString returns Options[key] as a string, or def when unset.
func (t Target) OptString(key, def string) string {
	v, ok := t.Options[key]
	if !ok || v == nil {
		return def
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return def
	}
	return s
}

// OptInt returns Options[key] as an int, or def when unset or not a number.
func (t Target) OptInt(key string, def int) int {
	switch v := t.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// OptBool returns Options[key] as a bool, or def when unset.
func (t Target) OptBool(key string, def bool) bool {
	switch v := t.Options[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}
