// Package colmap aligns source fields with target columns. Every format reader
// uses it so that header names are canonicalized the same way everywhere.
package colmap

import (
	"fmt"
	"strings"
)

const utf8BOM = "\ufeff"

// Canonical returns the column name for a source header: the header_map entry
// when there is one, otherwise the trimmed header lowercased with spaces
// turned into underscores. header_map keys are matched exactly and then
// case-insensitively, since config loading lowercases map keys.
func Canonical(h string, headerMap map[string]string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
	if m, ok := headerMap[h]; ok && m != "" {
		return m
	}
	if m, ok := headerMap[strings.ToLower(h)]; ok && m != "" {
		return m
	}
	return strings.ReplaceAll(strings.ToLower(h), " ", "_")
}

// Index builds idx[target] = source position for header against columns.
// Targets without a source map to -1 and are filled with NULL. When columns
// is empty the canonical header itself becomes the column list.
//
// It fails when no target column is found at all, which almost always means
// the wrong field delimiter or a missing header_map.
func Index(header, columns []string, headerMap map[string]string) ([]string, []int, error) {
	canon := make([]string, len(header))
	pos := make(map[string]int, len(header))
	for i, h := range header {
		canon[i] = Canonical(h, headerMap)
		if _, dup := pos[canon[i]]; !dup {
			pos[canon[i]] = i
		}
	}
	if len(columns) == 0 {
		idx := make([]int, len(canon))
		for i := range idx {
			idx[i] = i
		}
		return canon, idx, nil
	}

	idx := make([]int, len(columns))
	found := 0
	for t, col := range columns {
		if si, ok := pos[col]; ok {
			idx[t] = si
			found++
		} else {
			idx[t] = -1
		}
	}
	if found == 0 {
		return nil, nil, fmt.Errorf("none of the columns %v found in header %v", columns, canon)
	}
	return columns, idx, nil
}

// Missing returns the columns that Index mapped to -1.
func Missing(columns []string, idx []int) []string {
	var out []string
	for t, si := range idx {
		if si < 0 {
			out = append(out, columns[t])
		}
	}
	return out
}

// Positional maps columns to the first len(columns) fields in order.
func Positional(columns []string) []int {
	idx := make([]int, len(columns))
	for i := range idx {
		idx[i] = i
	}
	return idx
}
