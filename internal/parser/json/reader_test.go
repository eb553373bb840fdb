package json

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fifoexport/internal/config"
)

var cols = []string{"pcv", "typ", "hmotnost"}

func readAll(t *testing.T, in string, opt config.Options) ([][]any, error) {
	t.Helper()
	r, err := NewReader(strings.NewReader(in), cols, opt)
	require.NoError(t, err)
	var rows [][]any
	for {
		row, err := r.Next(context.Background())
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, append([]any(nil), row.V...))
		row.Free()
	}
}

func TestReader_Shapes(t *testing.T) {
	want := [][]any{
		{json.Number("1"), "M1", json.Number("1250.5")},
		{json.Number("2"), nil, nil},
	}
	cases := map[string]string{
		"array":         `[{"pcv":1,"typ":"M1","hmotnost":1250.5}, null, {"pcv":2}]`,
		"envelope":      `{"meta":{"count":2},"records":[{"pcv":1,"typ":"M1","hmotnost":1250.5},{"pcv":2}]}`,
		"ndjson":        "{\"pcv\":1,\"typ\":\"M1\",\"hmotnost\":1250.5}\n{\"pcv\":2}\n",
		"array + ndjson": `[{"pcv":1,"typ":"M1","hmotnost":1250.5}]` + "\n" + `{"pcv":2}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			rows, err := readAll(t, in, config.Options{})
			require.NoError(t, err)
			assert.Equal(t, want, rows)
		})
	}
}

func TestReader_RecordsKeyStreamsEnvelope(t *testing.T) {
	in := `{"meta":{"items":[{"pcv":99}]},"data":[{"pcv":1},{"pcv":2}],"tail":true}`

	rows, err := readAll(t, in, config.Options{"records_key": "data"})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{json.Number("1"), nil, nil}, {json.Number("2"), nil, nil}}, rows)

	_, err = readAll(t, in, config.Options{"records_key": "missing"})
	assert.ErrorContains(t, err, `records_key "missing" not found`)

	_, err = readAll(t, in, config.Options{"records_key": "tail"})
	assert.ErrorContains(t, err, "is not an array")
}

func TestReader_NDJSONOptionSkipsEnvelopeDetection(t *testing.T) {
	in := `{"pcv":1,"typ":[{"a":1}]}` + "\n" + `{"pcv":2}`
	rows, err := readAll(t, in, config.Options{"ndjson": true})
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{json.Number("1"), `[{"a":1}]`, nil},
		{json.Number("2"), nil, nil},
	}, rows)
}

func TestReader_HeaderMapAndCanonicalKeys(t *testing.T) {
	in := `[{"PČV": 7, "Typ": "N1", "Hmotnost": {"kg": 3}}]`
	rows, err := readAll(t, in, config.Options{"header_map": map[string]any{"pčv": "pcv"}})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{json.Number("7"), "N1", `{"kg":3}`}}, rows)
}

func TestReader_Errors(t *testing.T) {
	_, err := readAll(t, `[{"pcv":1}, 5]`, config.Options{})
	assert.ErrorContains(t, err, "record 2")

	_, err = readAll(t, `[{"pcv":1}`, config.Options{})
	assert.Error(t, err)

	_, err = readAll(t, `"text"`, config.Options{})
	assert.ErrorContains(t, err, "unsupported root value")

	_, err = readAll(t, "{\"pcv\":1}\n[1]", config.Options{})
	assert.ErrorContains(t, err, "want object")

	rows, err := readAll(t, "", config.Options{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = NewReader(strings.NewReader("[]"), nil, config.Options{})
	assert.Error(t, err)
}

func TestReader_LineIsRecordNumber(t *testing.T) {
	r, err := NewReader(strings.NewReader(`[{"pcv":1},{"pcv":2}]`), cols, config.Options{})
	require.NoError(t, err)
	for want := 1; want <= 2; want++ {
		row, err := r.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, row.Line)
	}
}
