// Package config defines the configuration model of an export job and loads
// it from YAML/JSON files with environment overrides.
//
// Example (trimmed):
//
//	job: vehicles
//	source:
//	  paths: ["s3://bucket/vehicles-*.csv.gz"]
//	  encoding: windows-1250
//	format:
//	  kind: csv
//	  options: { has_header: true, comma: ";" }
//	target:
//	  kind: netezza
//	  dsn: ${NZ_DSN}
//	  table: ADMIN.VEHICLES
//	  columns: [pcv, typ, platnost_od]
//	delimiters: { field: ",", escape: "\\" }
//	runtime: { parallel: 4, shutdown_grace: 30s }
package config

import (
	"fmt"
	"strconv"
	"time"

	"fifoexport/internal/transformer"
	"fifoexport/internal/warehouse"
)

// Job is the top-level object of a job file.
type Job struct {
	// Job labels logs and metrics.
	Job string `mapstructure:"job"`

	Source        Source        `mapstructure:"source"`
	Format        Format        `mapstructure:"format"`
	Target        Target        `mapstructure:"target"`
	Delimiters    Delimiters    `mapstructure:"delimiters"`
	Transform     Transform     `mapstructure:"transform"`
	Runtime       Runtime       `mapstructure:"runtime"`
	Observability Observability `mapstructure:"observability"`
}

// Source lists the inputs of a job. Every path becomes one export attempt.
type Source struct {
	// Paths are local files or file://, http(s)://, s3://, gs:// and
	// azblob:// URLs. Local paths may be globs.
	Paths []string `mapstructure:"paths"`

	// Encoding is the input charset (a WHATWG label such as
	// "windows-1250"); empty passes bytes through as UTF-8.
	Encoding string `mapstructure:"encoding"`
	// Normalize applies Unicode normalization ("nfc", "nfkc") after decoding.
	Normalize string `mapstructure:"normalize"`
	// Decompress is "auto" (magic bytes, then extension), "gzip", "zstd" or
	// "none".
	Decompress string `mapstructure:"decompress"`

	HTTP  HTTPSource  `mapstructure:"http"`
	S3    S3Source    `mapstructure:"s3"`
	GCS   GCSSource   `mapstructure:"gcs"`
	Azure AzureSource `mapstructure:"azure"`
}

// HTTPSource configures http(s) inputs.
type HTTPSource struct {
	Timeout            time.Duration     `mapstructure:"timeout"`
	RetryMax           int               `mapstructure:"retry_max"`
	InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify"`
	Headers            map[string]string `mapstructure:"headers"`
}

// S3Source configures s3:// inputs.
type S3Source struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// GCSSource configures gs:// inputs.
type GCSSource struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
}

// AzureSource configures azblob:// inputs.
type AzureSource struct {
	// AccountURL is e.g. https://<account>.blob.core.windows.net.
	AccountURL string `mapstructure:"account_url"`
	// ConnectionString takes precedence over AccountURL when set.
	ConnectionString string `mapstructure:"connection_string"`
}

// Format selects how input bytes become records.
type Format struct {
	// Kind is one of csv, json, text, avro, parquet.
	Kind string `mapstructure:"kind"`
	// Options is interpreted by the format implementation.
	Options Options `mapstructure:"options"`
}

// Target is the warehouse table that receives the records.
type Target struct {
	Kind    string   `mapstructure:"kind"`
	DSN     string   `mapstructure:"dsn"`
	Table   string   `mapstructure:"table"`
	Columns []string `mapstructure:"columns"`
	// Options carries backend-specific settings (driver, remote_source,
	// batch_size, ...).
	Options Options `mapstructure:"options"`
}

// Warehouse converts t into the warehouse package's target.
func (t Target) Warehouse() warehouse.Target {
	return warehouse.Target{
		Kind:    t.Kind,
		DSN:     t.DSN,
		Table:   t.Table,
		Columns: append([]string(nil), t.Columns...),
		Options: map[string]any(t.Options),
	}
}

// Transform configures the optional record transform stage.
type Transform struct {
	// Coerce maps column -> int | float | bool | date | timestamp | text.
	Coerce      map[string]string `mapstructure:"coerce"`
	DateLayout  string            `mapstructure:"date_layout"`
	Truthy      []string          `mapstructure:"truthy"`
	Falsy       []string          `mapstructure:"falsy"`
	Required    []string          `mapstructure:"required"`
	Dedup       []string          `mapstructure:"dedup"`
	Trim        bool              `mapstructure:"trim"`
	EmptyAsNull bool              `mapstructure:"empty_as_null"`
	// OnReject is "fail" (default) or "skip".
	OnReject string `mapstructure:"on_reject"`
}

// Spec builds the transformer spec for the given positional columns.
func (t Transform) Spec(columns []string) transformer.Spec {
	return transformer.Spec{
		Columns: columns,
		Coerce: transformer.CoerceSpec{
			Types:  t.Coerce,
			Layout: t.DateLayout,
			Truthy: t.Truthy,
			Falsy:  t.Falsy,
		},
		Required:    t.Required,
		Dedup:       t.Dedup,
		Trim:        t.Trim,
		EmptyAsNull: t.EmptyAsNull,
		OnReject:    t.OnReject,
	}
}

// Runtime controls how attempts run.
type Runtime struct {
	// WorkDir holds one private directory per attempt.
	WorkDir string `mapstructure:"work_dir"`
	// PipeName is the pipe's file name inside the attempt directory.
	PipeName string `mapstructure:"pipe_name"`
	// Parallel bounds concurrent attempts.
	Parallel int `mapstructure:"parallel"`
	// ShutdownGrace bounds the wait for the loader after cancellation.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	// ProgressEvery logs a heartbeat every N records; zero disables it.
	ProgressEvery int64 `mapstructure:"progress_every"`
}

// Observability configures logging and metrics.
type Observability struct {
	Logging Logging `mapstructure:"logging"`
	Metrics Metrics `mapstructure:"metrics"`
}

// Logging mirrors logging.Config.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Metrics selects a metrics backend.
type Metrics struct {
	// Backend is "none", "prometheus" or "datadog".
	Backend        string   `mapstructure:"backend"`
	PushgatewayURL string   `mapstructure:"pushgateway_url"`
	DatadogAddr    string   `mapstructure:"datadog_addr"`
	Tags           []string `mapstructure:"tags"`
}

// Options fetches typed values from free-form option maps. Values decoded by
// viper keep their YAML types; values coming from the environment are
// strings, so the numeric and boolean getters also accept strings.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if pb, err := strconv.ParseBool(b); err == nil {
				return pb
			}
		}
	}
	return def
}

// Int returns the int value for key or def.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		case string:
			if i, err := strconv.Atoi(n); err == nil {
				return i
			}
		}
	}
	return def
}

// Rune returns the single character configured for key, or def. Escapes such
// as "\t" and hex forms such as "0x1f" are accepted.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			if r, err := ParseRune(s); err == nil {
				return r
			}
		}
	}
	return def
}

// StringMap returns the string values of a nested object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		switch m := v.(type) {
		case map[string]any:
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		case map[string]string:
			for k, vv := range m {
				res[k] = vv
			}
		}
	}
	return res
}

// StringSlice returns the string elements of a list.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	return o[key]
}

// Issues is the result of ValidateJob.
type Issues []Issue

// Err returns an error listing every error-severity issue, or nil.
func (is Issues) Err() error {
	var errs []Issue
	for _, i := range is {
		if i.Severity == SeverityError {
			errs = append(errs, i)
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("%v (and %d more)", errs[0], len(errs)-1)
	}
}
