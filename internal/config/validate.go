package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"

	"fifoexport/internal/delimited"
	"fifoexport/internal/warehouse"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single lint finding. Path is a dotted path into the job
// (e.g. "target.kind", "delimiters.enclose").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// FormatKinds lists the input formats the parser package implements.
var FormatKinds = []string{"avro", "csv", "json", "jsonl", "ndjson", "parquet", "text"}

var sourceSchemes = map[string]struct{}{
	"": {}, "file": {}, "http": {}, "https": {}, "s3": {}, "gs": {}, "azblob": {},
}

// ValidateJob lints j. Target kinds are checked against the warehouse
// registry, so backends must be registered (see warehouse/all) for the
// dialect checks to run.
func ValidateJob(j Job) Issues {
	var issues Issues
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(j.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels logs and metrics")
	}

	// source
	if len(j.Source.Paths) == 0 {
		add(SeverityError, "source.paths", "at least one input path is required")
	}
	for i, p := range j.Source.Paths {
		path := fmt.Sprintf("source.paths[%d]", i)
		if strings.TrimSpace(p) == "" {
			add(SeverityError, path, "path must not be empty")
			continue
		}
		if u, err := url.Parse(p); err == nil && len(u.Scheme) > 1 {
			if _, ok := sourceSchemes[u.Scheme]; !ok {
				add(SeverityError, path, "unsupported scheme %q", u.Scheme)
			}
		}
	}
	switch strings.ToLower(j.Source.Normalize) {
	case "", "none", "nfc", "nfkc", "nfd", "nfkd":
	default:
		add(SeverityError, "source.normalize", "unknown normalization form %q", j.Source.Normalize)
	}
	switch strings.ToLower(j.Source.Decompress) {
	case "", "auto", "gzip", "gz", "zstd", "zst", "none":
	default:
		add(SeverityError, "source.decompress", "unknown decompression %q", j.Source.Decompress)
	}

	// format
	if !slices.Contains(FormatKinds, j.Format.Kind) {
		add(SeverityError, "format.kind", "unknown format %q (known: %v)", j.Format.Kind, FormatKinds)
	}
	if j.Format.Kind == "csv" && !j.Format.Options.Bool("has_header", true) && len(j.Target.Columns) == 0 {
		add(SeverityWarning, "format.options.has_header", "csv without header and without target.columns maps fields positionally")
	}

	// target + delimiters
	ds, err := j.Delimiters.Set()
	if err != nil {
		add(SeverityError, "delimiters", "%v", err)
	}
	if strings.TrimSpace(j.Target.Table) == "" {
		add(SeverityError, "target.table", "target.table must not be empty")
	}
	if strings.TrimSpace(j.Target.DSN) == "" {
		add(SeverityError, "target.dsn", "target.dsn must not be empty")
	}
	wh, lerr := warehouse.Lookup(j.Target.Kind)
	if lerr != nil {
		add(SeverityError, "target.kind", "%v", lerr)
	} else if err == nil {
		issues = append(issues, validateAgainstDialect(wh, j.Target, ds)...)
	}

	// transform
	switch strings.ToLower(j.Transform.OnReject) {
	case "", "fail", "skip":
	default:
		add(SeverityError, "transform.on_reject", "on_reject must be fail or skip, got %q", j.Transform.OnReject)
	}
	for col, typ := range j.Transform.Coerce {
		switch strings.ToLower(typ) {
		case "int", "float", "bool", "date", "timestamp", "text", "string", "":
		default:
			add(SeverityError, "transform.coerce."+col, "unsupported type %q", typ)
		}
	}
	if cols := j.Target.Columns; len(cols) > 0 {
		for col := range j.Transform.Coerce {
			if !slices.Contains(cols, col) {
				add(SeverityError, "transform.coerce."+col, "column is not in target.columns")
			}
		}
		for _, col := range j.Transform.Required {
			if !slices.Contains(cols, col) {
				add(SeverityError, "transform.required", "column %q is not in target.columns", col)
			}
		}
		for _, col := range j.Transform.Dedup {
			if !slices.Contains(cols, col) {
				add(SeverityError, "transform.dedup", "column %q is not in target.columns", col)
			}
		}
	} else if len(j.Transform.Coerce)+len(j.Transform.Required)+len(j.Transform.Dedup) > 0 {
		add(SeverityError, "transform", "coerce, required and dedup need target.columns")
	}

	// runtime
	if j.Runtime.Parallel < 0 {
		add(SeverityError, "runtime.parallel", "parallel must not be negative")
	}
	if j.Runtime.ShutdownGrace < 0 {
		add(SeverityError, "runtime.shutdown_grace", "shutdown_grace must not be negative")
	}
	if j.Runtime.ProgressEvery < 0 {
		add(SeverityError, "runtime.progress_every", "progress_every must not be negative")
	}
	if strings.ContainsRune(j.Runtime.PipeName, filepath.Separator) {
		add(SeverityError, "runtime.pipe_name", "pipe_name must be a file name, not a path")
	}

	// observability
	switch strings.ToLower(j.Observability.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		add(SeverityError, "observability.logging.level", "unknown level %q", j.Observability.Logging.Level)
	}
	switch strings.ToLower(j.Observability.Metrics.Backend) {
	case "", "none":
	case "prometheus":
		if j.Observability.Metrics.PushgatewayURL == "" {
			add(SeverityError, "observability.metrics.pushgateway_url", "prometheus backend needs a pushgateway_url")
		}
	case "datadog":
	default:
		add(SeverityError, "observability.metrics.backend", "unknown metrics backend %q", j.Observability.Metrics.Backend)
	}

	return issues
}

// validateAgainstDialect reports delimiter downgrades as warnings and renders
// the statement once so backend-specific requirements surface before a run.
func validateAgainstDialect(wh warehouse.Warehouse, t Target, ds delimited.DelimiterSet) Issues {
	var issues Issues
	_, warns, err := warehouse.Render(wh, t.Warehouse(), "/placeholder/"+t.Kind+".pipe", ds)
	for _, w := range warns {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "delimiters." + delimiterKey(w.Setting),
			Message:  w.Message,
		})
	}
	if err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "target", Message: err.Error()})
	}
	return issues
}

func delimiterKey(setting string) string {
	switch setting {
	case "enclosed_by":
		return "enclose"
	case "escaped_by":
		return "escape"
	case "lines_terminated_by":
		return "record"
	default:
		return setting
	}
}
