package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fifoexport/internal/export"
)

func writeJob(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rc := newRootCommand(strings.NewReader(""), &out, &errOut)
	rc.SetArgs(args)
	err := rc.Execute()
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	loadErr := &export.Error{Kind: export.KindLoadStatement, Op: "load", Err: errors.New("boom")}
	cases := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{errors.New("x"), exitFailure},
		{&configError{err: errNoConfig}, exitConfig},
		{fmt.Errorf("rs.csv: %w", loadErr), exitLoad},
		{errors.Join(errors.New("a"), &export.Error{Kind: export.KindRecord, Err: errors.New("bad")}), exitRecord},
		{&export.Error{Kind: export.KindIO, Err: errors.New("pipe")}, exitResource},
		{&export.Error{Kind: export.KindConnection, Err: errors.New("dial")}, exitConnection},
		{&export.Error{Kind: export.KindConfig, Op: "render statement", Err: errors.New("ambiguous")}, exitConfig},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, exitCode(tc.err), "%v", tc.err)
	}
}

func TestAttemptIDs(t *testing.T) {
	assert.Equal(t, []string{"nightly"}, attemptIDs("nightly", 1))
	assert.Equal(t, []string{"nightly-1", "nightly-2"}, attemptIDs("nightly", 2))

	ids := attemptIDs("", 3)
	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])
	assert.Len(t, ids[2], 36)
}

const sqliteJob = `
job: people
source:
  paths: [%q]
format:
  kind: csv
target:
  kind: sqlite
  dsn: %q
  table: people
  columns: [id, name]
runtime:
  work_dir: %q
observability:
  logging: { level: error }
`

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeJob(t, fmt.Sprintf(sqliteJob, "in.csv", "file:"+filepath.Join(dir, "wh.db"), dir))
	out, err := execute(t, "validate", "--config", good)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")

	bad := writeJob(t, "job: x\nformat: { kind: xml }\n")
	out, err = execute(t, "validate", "-c", bad)
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCode(err))
	assert.Contains(t, out, "error: format.kind")
	assert.Contains(t, out, "error: source.paths")

	_, err = execute(t, "validate")
	assert.ErrorIs(t, err, errNoConfig)
}

func TestStatementCommand(t *testing.T) {
	dir := t.TempDir()
	job := writeJob(t, fmt.Sprintf(sqliteJob, "in.csv", "file:"+filepath.Join(dir, "wh.db"), dir))

	out, err := execute(t, "statement", "-c", job, "--pipe", "/run/p.txt")
	require.NoError(t, err)
	assert.Contains(t, out, `INSERT INTO people ("id", "name") VALUES (?, ?)`)
}

func TestRootRejectsUnknownMetricsBackend(t *testing.T) {
	dir := t.TempDir()
	job := writeJob(t, fmt.Sprintf(sqliteJob, "in.csv", "file:"+filepath.Join(dir, "wh.db"), dir))
	_, err := execute(t, "export", "-c", job, "--metrics-backend", "graphite")
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCode(err))
	assert.ErrorContains(t, err, "unknown metrics backend")
}
