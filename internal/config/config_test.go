package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fifoexport/internal/delimited"
	_ "fifoexport/internal/warehouse/all"
)

const jobYAML = `
job: vehicles
source:
  paths: ["testdata/rs.csv", "s3://bucket/rs-2.csv"]
  encoding: windows-1250
format:
  kind: csv
  options:
    has_header: true
    comma: ";"
    expected_fields: 3
    header_map: { "PČV": pcv }
target:
  kind: netezza
  dsn: ${FIFOEXPORT_TEST_DSN}
  table: ADMIN.VEHICLES
  columns: [pcv, typ, platnost_od]
  options: { remote_source: odbc }
delimiters:
  field: "|"
  escape: '\\'
transform:
  coerce: { pcv: int, platnost_od: date }
  date_layout: "02.01.2006"
  required: [pcv]
runtime:
  parallel: 4
  shutdown_grace: 45s
  progress_every: 100000
`

func writeJob(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoader_LoadYAML(t *testing.T) {
	t.Setenv("FIFOEXPORT_TEST_DSN", "DSN=NZSQL;UID=admin")

	job, err := NewLoader().Load(writeJob(t, "job.yaml", jobYAML))
	require.NoError(t, err)

	assert.Equal(t, "vehicles", job.Job)
	assert.Equal(t, []string{"testdata/rs.csv", "s3://bucket/rs-2.csv"}, job.Source.Paths)
	assert.Equal(t, "windows-1250", job.Source.Encoding)
	assert.Equal(t, "auto", job.Source.Decompress, "default")
	assert.Equal(t, 60*time.Second, job.Source.HTTP.Timeout, "default")

	assert.Equal(t, "csv", job.Format.Kind)
	assert.True(t, job.Format.Options.Bool("has_header", false))
	assert.Equal(t, ';', job.Format.Options.Rune("comma", ','))
	assert.Equal(t, 3, job.Format.Options.Int("expected_fields", 0))

	assert.Equal(t, "DSN=NZSQL;UID=admin", job.Target.DSN, "${VAR} expanded")
	assert.Equal(t, "odbc", job.Target.Options.String("remote_source", ""))
	assert.Equal(t, []string{"pcv", "typ", "platnost_od"}, job.Target.Columns)

	assert.Equal(t, 4, job.Runtime.Parallel)
	assert.Equal(t, 45*time.Second, job.Runtime.ShutdownGrace)
	assert.EqualValues(t, 100000, job.Runtime.ProgressEvery)

	ds, err := job.Delimiters.Set()
	require.NoError(t, err)
	assert.Equal(t, delimited.DelimiterSet{Field: '|', Record: '\n', Escape: '\\'}, ds)

	spec := job.Transform.Spec(job.Target.Columns)
	assert.Equal(t, "int", spec.Coerce.Types["pcv"])
	assert.Equal(t, "02.01.2006", spec.Coerce.Layout)
	assert.Equal(t, []string{"pcv"}, spec.Required)
	assert.Equal(t, "fail", spec.OnReject)

	wt := job.Target.Warehouse()
	assert.Equal(t, "netezza", wt.Kind)
	assert.Equal(t, "odbc", wt.OptString("remote_source", ""))
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("FIFOEXPORT_TARGET_TABLE", "ADMIN.OTHER")
	t.Setenv("FIFOEXPORT_RUNTIME_PARALLEL", "2")

	job, err := NewLoader().Load(writeJob(t, "job.yml", jobYAML))
	require.NoError(t, err)
	assert.Equal(t, "ADMIN.OTHER", job.Target.Table)
	assert.Equal(t, 2, job.Runtime.Parallel)
}

func TestLoader_JSONAndDefaults(t *testing.T) {
	job, err := NewLoader().Load(writeJob(t, "job.json", `{"source": {"paths": ["a.csv"]}, "target": {"table": "t"}}`))
	require.NoError(t, err)

	assert.Equal(t, "fifoexport", job.Job)
	assert.Equal(t, "netezza", job.Target.Kind)
	assert.Equal(t, 1, job.Runtime.Parallel)
	assert.Equal(t, 30*time.Second, job.Runtime.ShutdownGrace)
	assert.Equal(t, "info", job.Observability.Logging.Level)
	assert.NotNil(t, job.Format.Options)
	assert.NotNil(t, job.Target.Options)

	ds, err := job.Delimiters.Set()
	require.NoError(t, err)
	assert.Equal(t, delimited.DefaultDelimiters, ds)
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestParseRune(t *testing.T) {
	cases := map[string]rune{
		",":    ',',
		"|":    '|',
		"¦":    '¦',
		`\t`:   '\t',
		`\n`:   '\n',
		`\\`:   '\\',
		`\x01`: 0x01,
		"0x1f": 0x1f,
		"0X1F": 0x1f,
	}
	for in, want := range cases {
		got, err := ParseRune(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "ab", "0xzz", `\q`} {
		_, err := ParseRune(bad)
		assert.Error(t, err, bad)
	}
}

func TestDelimiters_Set(t *testing.T) {
	ds, err := Delimiters{Field: `\t`, Enclose: `"`, Escape: "none", EncloseRequired: true}.Set()
	require.NoError(t, err)
	assert.Equal(t, delimited.DelimiterSet{Field: '\t', Record: '\n', Enclose: '"', EncloseRequired: true}, ds)

	_, err = Delimiters{Record: "crlf"}.Set()
	assert.ErrorContains(t, err, "delimiters.record")
}

func TestOptions(t *testing.T) {
	o := Options{
		"s":    "x",
		"b":    true,
		"bs":   "false",
		"i":    7,
		"f":    3.0,
		"is":   "12",
		"tab":  `\t`,
		"m":    map[string]any{"A": "a", "n": 1},
		"list": []any{"a", 1, "b"},
	}
	assert.Equal(t, "x", o.String("s", ""))
	assert.Equal(t, "d", o.String("missing", "d"))
	assert.True(t, o.Bool("b", false))
	assert.False(t, o.Bool("bs", true))
	assert.Equal(t, 7, o.Int("i", 0))
	assert.Equal(t, 3, o.Int("f", 0))
	assert.Equal(t, 12, o.Int("is", 0))
	assert.Equal(t, '\t', o.Rune("tab", ','))
	assert.Equal(t, map[string]string{"A": "a"}, o.StringMap("m"))
	assert.Equal(t, []string{"a", "b"}, o.StringSlice("list"))
	assert.Nil(t, o.Any("missing"))
}
