package netezza

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fifoexport/internal/delimited"
	"fifoexport/internal/warehouse"
)

func TestStatement_Default(t *testing.T) {
	st, warns, err := warehouse.Render(Warehouse{}, warehouse.Target{Table: "SALES"},
		"/tmp/job/attempt_1/netezza.txt", delimited.DelimiterSet{})
	require.NoError(t, err)
	assert.Empty(t, warns)

	want := "INSERT INTO SALES SELECT * FROM EXTERNAL '/tmp/job/attempt_1/netezza.txt' " +
		"USING (REMOTESOURCE 'ODBC' BOOLSTYLE 'TRUE_FALSE' CRINSTRING FALSE DELIMITER ',' " +
		"ENCODING 'internal' ESCAPECHAR '\\' FORMAT 'text' INCLUDEZEROSECONDS TRUE NULLVALUE 'null' )"
	assert.Equal(t, want, st.SQL)
}

func TestStatement_RemoteSourceAndDelimiter(t *testing.T) {
	tg := warehouse.Target{Table: "T", Options: map[string]any{OptRemoteSource: "jdbc"}}
	st, warns, err := warehouse.Render(Warehouse{}, tg, "/p", delimited.DelimiterSet{Field: '|', Enclose: '"'})
	require.NoError(t, err)
	require.Len(t, warns, 1)
	assert.Contains(t, st.SQL, "REMOTESOURCE 'JDBC'")
	assert.Contains(t, st.SQL, "DELIMITER '|'")
}

func TestStatement_RemoteSourceFollowsDriver(t *testing.T) {
	cases := []struct {
		opts map[string]any
		want string
	}{
		{nil, "ODBC"},
		{map[string]any{OptDriver: "odbc"}, "ODBC"},
		{map[string]any{OptDriver: "jdbc"}, "JDBC"},
		{map[string]any{OptDriver: "nzgo"}, "GOLANG"},
		{map[string]any{OptDriver: "custom"}, "ODBC"},
		{map[string]any{OptDriver: "nzgo", OptRemoteSource: "odbc"}, "ODBC"},
	}
	for _, tc := range cases {
		st, err := Warehouse{}.Statement(warehouse.Target{Table: "T", Options: tc.opts}, "/p", delimited.DefaultDelimiters)
		require.NoError(t, err)
		assert.Contains(t, st.SQL, "REMOTESOURCE '"+tc.want+"'", "%v", tc.opts)
	}
}

func TestStatement_Rejects(t *testing.T) {
	_, err := Warehouse{}.Statement(warehouse.Target{}, "/p", delimited.DefaultDelimiters)
	assert.Error(t, err)
	_, err = Warehouse{}.Statement(warehouse.Target{Table: "T"}, "/it's", delimited.DefaultDelimiters)
	assert.Error(t, err)
}

func TestConnect_UsesConfiguredDriver(t *testing.T) {
	orig := openSQL
	t.Cleanup(func() { openSQL = orig })

	var gotDriver, gotDSN string
	openSQL = func(_ context.Context, driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return nil, errors.New("refused")
	}

	_, err := Warehouse{}.Connect(context.Background(), warehouse.Target{DSN: "DSN=NZ", Options: map[string]any{OptDriver: "nzgo"}})
	require.Error(t, err)
	assert.Equal(t, "nzgo", gotDriver)
	assert.Equal(t, "DSN=NZ", gotDSN)

	_, _ = Warehouse{}.Connect(context.Background(), warehouse.Target{DSN: "DSN=NZ"})
	assert.Equal(t, "odbc", gotDriver)
}
