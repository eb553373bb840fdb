package transformer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fifoexport/internal/record"
)

var columns = []string{"pcv", "typ", "platnost_od", "aktualni"}

func TestStage_Coercion(t *testing.T) {
	t.Parallel()

	src := record.NewSlice(
		[]any{" 7263067 ", "E - Evidenční", "07.10.2011", "False"},
		[]any{"42.0", "", "2011-10-07", "ano"},
	)
	st, err := New(src, Spec{
		Columns: columns,
		Coerce: CoerceSpec{
			Types:  map[string]string{"pcv": "int", "platnost_od": "date", "aktualni": "bool"},
			Layout: "02.01.2006",
		},
	}, nil)
	require.NoError(t, err)

	got, err := record.Drain(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, got, 2)

	day := time.Date(2011, 10, 7, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []any{int64(7263067), "E - Evidenční", day, false}, got[0])
	assert.Equal(t, []any{int64(42), "", day, true}, got[1], "untyped empty text stays empty")
}

func TestStage_RejectFail(t *testing.T) {
	t.Parallel()

	src := record.NewSlice([]any{"1", "a", "", "t"}, []any{"ahoj", "b", "", "t"})
	st, err := New(src, Spec{
		Columns: columns,
		Coerce:  CoerceSpec{Types: map[string]string{"pcv": "int"}},
	}, nil)
	require.NoError(t, err)

	r, err := st.Next(context.Background())
	require.NoError(t, err)
	r.Free()

	_, err = st.Next(context.Background())
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, 2, rej.Line)
	assert.Equal(t, "pcv", rej.Column)
	assert.Contains(t, rej.Error(), `not an integer: "ahoj"`)
}

func TestStage_RejectSkipAndRequired(t *testing.T) {
	t.Parallel()

	src := record.NewSlice(
		[]any{"1", "a", "", "t"},
		[]any{"2", nil, "", "t"},
		[]any{"x", "c", "", "t"},
		[]any{"4", "d", "", "t"},
	)
	st, err := New(src, Spec{
		Columns:  columns,
		Coerce:   CoerceSpec{Types: map[string]string{"pcv": "int"}},
		Required: []string{"typ"},
		OnReject: RejectSkip,
	}, nil)
	require.NoError(t, err)

	got, err := record.Drain(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0][0])
	assert.Equal(t, int64(4), got[1][0])
	assert.EqualValues(t, 2, st.Rejected())
}

func TestStage_WidthMismatch(t *testing.T) {
	t.Parallel()

	st, err := New(record.NewSlice([]any{"1"}), Spec{Columns: columns, Trim: true}, nil)
	require.NoError(t, err)

	_, err = st.Next(context.Background())
	assert.ErrorContains(t, err, "has 1 fields, want 4")
}

func TestStage_DedupKeepsFirst(t *testing.T) {
	t.Parallel()

	src := record.NewSlice(
		[]any{"1", "a", "x", "t"},
		[]any{"1", "b", "x", "t"},
		[]any{"1", "c", "y", "t"},
		[]any{"2", "d", "x", "t"},
	)
	st, err := New(src, Spec{
		Columns: columns,
		Coerce:  CoerceSpec{Types: map[string]string{"pcv": "int"}},
		Dedup:   []string{"pcv", "platnost_od"},
	}, nil)
	require.NoError(t, err)

	got, err := record.Drain(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0][1])
	assert.Equal(t, "c", got[1][1])
	assert.Equal(t, "d", got[2][1])
	assert.EqualValues(t, 1, st.Duplicates())
}

func TestStage_TrimAndEmptyAsNull(t *testing.T) {
	t.Parallel()

	st, err := New(record.NewSlice([]any{" a b ", "  ", 3}), Spec{Trim: true, EmptyAsNull: true}, nil)
	require.NoError(t, err)

	got, err := record.Drain(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"a b", nil, 3}}, got)
}

func TestStage_PropagatesSourceError(t *testing.T) {
	t.Parallel()

	boom := errors.New("broken stream")
	src := record.Func(func(context.Context) (*record.Row, error) { return nil, boom })
	st, err := New(src, Spec{Trim: true}, nil)
	require.NoError(t, err)

	_, err = st.Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestWrap_EmptySpecIsPassThrough(t *testing.T) {
	src := record.NewSlice()
	got, err := Wrap(src, Spec{Columns: columns}, nil)
	require.NoError(t, err)
	assert.Same(t, src, got)

	_, err = got.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestNew_RejectsBadSpec(t *testing.T) {
	cases := map[string]Spec{
		"unknown coerce column":   {Columns: columns, Coerce: CoerceSpec{Types: map[string]string{"nope": "int"}}},
		"unsupported type":        {Columns: columns, Coerce: CoerceSpec{Types: map[string]string{"pcv": "uuid"}}},
		"unknown required column": {Columns: columns, Required: []string{"nope"}},
		"unknown dedup column":    {Columns: columns, Dedup: []string{"nope"}},
		"unknown policy":          {Columns: columns, Trim: true, OnReject: "ignore"},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(record.NewSlice(), spec, nil)
			assert.Error(t, err)
		})
	}
}

func TestCoercers(t *testing.T) {
	t.Parallel()

	v, ok := toIntFast("42.5")
	assert.False(t, ok)
	v, ok = toIntFast("-17")
	assert.True(t, ok)
	assert.EqualValues(t, -17, v)

	b, ok := toBoolFast("ja", true, lowerSet([]string{"JA"}), lowerSet([]string{"nein"}))
	assert.True(t, ok)
	assert.True(t, b)
	_, ok = toBoolFast("true", true, lowerSet([]string{"ja"}), nil)
	assert.False(t, ok, "custom vocabulary replaces the default one")

	_, ok = parseCZDate("31.02.2020")
	assert.False(t, ok)
	d, ok := parseCZDate("29.02.2020")
	assert.True(t, ok)
	assert.Equal(t, time.February, d.Month())

	ts, ok := parseTimestamp("2024-05-06 07:08:09.5", "")
	assert.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, time.Duration(ts.Nanosecond()))
}
