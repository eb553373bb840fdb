package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fifoexport/internal/delimited"
	"fifoexport/internal/warehouse"
)

func TestStatement(t *testing.T) {
	tests := []struct {
		name string
		tg   warehouse.Target
		ds   delimited.DelimiterSet
		want string
	}{
		{
			name: "default with columns",
			tg:   warehouse.Target{Table: "public.sales", Columns: []string{"id", "na\"me"}},
			want: `COPY "public"."sales" ("id", "na""me") FROM STDIN WITH (FORMAT text, DELIMITER ',', NULL '\N', ENCODING 'UTF8')`,
		},
		{
			name: "tab delimited without columns",
			tg:   warehouse.Target{Table: "t"},
			ds:   delimited.DelimiterSet{Field: '\t'},
			want: `COPY "t" FROM STDIN WITH (FORMAT text, DELIMITER E'\x09', NULL '\N', ENCODING 'UTF8')`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st, _, err := warehouse.Render(Warehouse{}, tc.tg, "/p", tc.ds)
			require.NoError(t, err)
			assert.Equal(t, tc.want, st.SQL)
			assert.Equal(t, "/p", st.PipePath)
		})
	}
}

func TestStatement_RejectsMultibyteDelimiter(t *testing.T) {
	_, _, err := warehouse.Render(Warehouse{}, warehouse.Target{Table: "t"}, "/p", delimited.DelimiterSet{Field: '§'})
	assert.Error(t, err)
}

func TestConnect_Errors(t *testing.T) {
	_, err := Warehouse{}.Connect(context.Background(), warehouse.Target{})
	assert.ErrorContains(t, err, "DSN must not be empty")

	orig := connect
	t.Cleanup(func() { connect = orig })
	boom := errors.New("connection refused")
	connect = func(context.Context, string) (*pgx.Conn, error) { return nil, boom }

	_, err = Warehouse{}.Connect(context.Background(), warehouse.Target{DSN: "postgres://x"})
	assert.ErrorIs(t, err, boom)
}

func TestPgChar(t *testing.T) {
	assert.Equal(t, "'|'", pgChar('|'))
	assert.Equal(t, "''''", pgChar('\''))
	assert.Equal(t, `E'\\'`, pgChar('\\'))
	assert.Equal(t, `E'\x1f'`, pgChar(0x1f))
}

func TestDialect_ControlCharactersUseLetterEscapes(t *testing.T) {
	ds, _, err := delimited.Normalize(delimited.DefaultDelimiters, Dialect)
	require.NoError(t, err)

	got, err := delimited.NewEncoder(ds, Dialect).Encode([]any{"a\nb\r", nil, true})
	require.NoError(t, err)
	assert.Equal(t, `a\nb\r,\N,t`+"\n", string(got))
}
