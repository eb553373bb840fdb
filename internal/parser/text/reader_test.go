package text

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fifoexport/internal/config"
	"fifoexport/internal/delimited"
	"fifoexport/internal/record"
)

func rowsOf(t *testing.T, r *Reader) [][]any {
	t.Helper()
	var out [][]any
	for {
		row, err := r.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, append([]any(nil), row.V...))
		row.Free()
	}
}

func TestReader_NetezzaUnload(t *testing.T) {
	in := "1|Škoda\\|Octavia|null\r\n2|\\\\|TRUE\r\n"
	r, err := NewReader(strings.NewReader(in), []string{"id", "name", "flag"},
		config.Options{"field": "|", "null": "null"})
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"1", "Škoda|Octavia", nil},
		{"2", `\`, "TRUE"},
	}, rowsOf(t, r))
}

func TestReader_HeaderAndEnclosure(t *testing.T) {
	in := "ID,Name\n7,\"a,b\"\n8,\\N\n"
	r, err := NewReader(strings.NewReader(in), []string{"name", "id"},
		config.Options{"has_header": true, "enclose": `"`, "escape": `"`})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"a,b", "7"}, {nil, "8"}}, rowsOf(t, r))
}

func TestReader_RoundTripsEncoder(t *testing.T) {
	ds := delimited.DelimiterSet{Field: '\t', Record: '\n', Escape: '\\'}
	enc := delimited.NewEncoder(ds, delimited.Dialect{Name: "pg", Escape: '\\', NullToken: `\N`})

	var sb strings.Builder
	src := [][]any{{"tab\there", nil}, {"new\nline", "x"}}
	for _, rec := range src {
		b, err := enc.Encode(rec)
		require.NoError(t, err)
		sb.Write(b)
	}

	r, err := NewReader(strings.NewReader(sb.String()), nil, config.Options{"field": `\t`})
	require.NoError(t, err)
	assert.Equal(t, src, rowsOf(t, r))
}

func TestReader_Errors(t *testing.T) {
	_, err := NewReader(strings.NewReader(""), nil, config.Options{"field": `\n`})
	assert.ErrorContains(t, err, "ambiguous")

	_, err = NewReader(strings.NewReader("a|b\n1|2\n"), []string{"x"}, config.Options{"field": "|", "has_header": true})
	assert.ErrorContains(t, err, "none of the columns")

	r, err := NewReader(strings.NewReader("1,\"open"), nil, config.Options{"enclose": `"`})
	require.NoError(t, err)
	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReader_IsSource(t *testing.T) {
	var _ record.Source = (*Reader)(nil)
}
