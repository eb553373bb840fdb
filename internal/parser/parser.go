// Package parser turns a decoded input stream into records aligned to the
// target columns. Each format lives in its own subpackage; Open picks one by
// kind.
package parser

import (
	"fmt"
	"io"
	"strings"

	"fifoexport/internal/config"
	"fifoexport/internal/parser/avro"
	"fifoexport/internal/parser/csv"
	"fifoexport/internal/parser/json"
	"fifoexport/internal/parser/parquet"
	"fifoexport/internal/parser/text"
	"fifoexport/internal/record"
)

// Source is what Open returns: a record.Source that also reports the
// resolved column layout.
type Source interface {
	record.Source
	Columns() []string
}

// Open returns a reader for kind over r. opts are the format options of the
// job (format.options). Readers that hold resources beyond r, such as the
// parquet spool file, also implement io.Closer.
func Open(kind string, r io.Reader, columns []string, opts config.Options) (Source, error) {
	if opts == nil {
		opts = config.Options{}
	}
	switch k := strings.ToLower(kind); k {
	case "csv":
		return checked(csv.NewReader(r, columns, opts))
	case "json", "ndjson", "jsonl":
		if k != "json" {
			opts = withDefault(opts, "ndjson", true)
		}
		return checked(json.NewReader(r, columns, opts))
	case "text":
		return checked(text.NewReader(r, columns, opts))
	case "avro":
		return checked(avro.NewReader(r, columns, opts))
	case "parquet":
		return checked(parquet.NewReader(r, columns, opts))
	default:
		return nil, fmt.Errorf("parser: unknown format %q", kind)
	}
}

// checked keeps a nil reader from turning into a non-nil interface.
func checked[S Source](s S, err error) (Source, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

func withDefault(opts config.Options, key string, v any) config.Options {
	if _, ok := opts[key]; ok {
		return opts
	}
	out := make(config.Options, len(opts)+1)
	for k, val := range opts {
		out[k] = val
	}
	out[key] = v
	return out
}
