// Package netezza loads data into IBM Netezza / PureData through an external
// table that reads the named pipe:
//
//	INSERT INTO <table> SELECT * FROM EXTERNAL '<pipe>' USING (...)
//
// The connection goes through database/sql. The ODBC driver is compiled in
// with the "odbc" build tag (it needs cgo and unixODBC); without it, any
// database/sql driver registered under Options["driver"] is used.
package netezza

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"fifoexport/internal/delimited"
	"fifoexport/internal/warehouse"
)

// Kind is the registry name.
const Kind = "netezza"

// Option keys read from warehouse.Target.Options.
const (
	OptDriver       = "driver"        // database/sql driver name, default "odbc"
	OptRemoteSource = "remote_source" // REMOTESOURCE value, default derived from the driver
)

const defaultDriver = "odbc"

// remoteSources maps database/sql driver names to the client type the
// server expects in REMOTESOURCE. The server only streams the external file
// from the client when the two agree.
var remoteSources = map[string]string{
	"odbc": "ODBC",
	"jdbc": "JDBC",
	"nzgo": "GOLANG",
}

// remoteSource returns the configured REMOTESOURCE, or the one matching the
// configured driver. Unknown drivers fall back to ODBC.
func remoteSource(t warehouse.Target) string {
	if rs := t.OptString(OptRemoteSource, ""); rs != "" {
		return strings.ToUpper(rs)
	}
	if rs, ok := remoteSources[strings.ToLower(t.OptString(OptDriver, defaultDriver))]; ok {
		return rs
	}
	return remoteSources[defaultDriver]
}

// Dialect is what the external-table loader accepts in text format: only '\'
// escapes, no enclosure, newline records, TRUE/FALSE booleans and the literal
// null token. Carriage returns are escaped because CRINSTRING is off.
var Dialect = delimited.Dialect{
	Name:         Kind,
	Escape:       '\\',
	Record:       '\n',
	NullToken:    "null",
	Bools:        delimited.BoolTrueFalse,
	ExtraEscapes: []rune{'\r'},
}

// Warehouse implements warehouse.Warehouse.
type Warehouse struct{}

var openSQL = warehouse.OpenSQL

func init() { warehouse.Register(Kind, Warehouse{}) }

// Dialect implements warehouse.Warehouse.
func (Warehouse) Dialect() delimited.Dialect { return Dialect }

// Statement implements warehouse.Warehouse.
func (Warehouse) Statement(t warehouse.Target, pipePath string, ds delimited.DelimiterSet) (warehouse.Statement, error) {
	if strings.TrimSpace(t.Table) == "" {
		return warehouse.Statement{}, errors.New("netezza: table is required")
	}
	if strings.ContainsRune(pipePath, '\'') {
		return warehouse.Statement{}, errors.Errorf("netezza: pipe path %q contains a quote", pipePath)
	}
	remote := remoteSource(t)

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(t.Table)
	sb.WriteString(" SELECT * FROM EXTERNAL '")
	sb.WriteString(pipePath)
	sb.WriteString("' USING (REMOTESOURCE '")
	sb.WriteString(remote)
	sb.WriteString("' ")
	sb.WriteString("BOOLSTYLE 'TRUE_FALSE' ")
	sb.WriteString("CRINSTRING FALSE ")
	sb.WriteString("DELIMITER ")
	sb.WriteString(quoteChar(ds.Field))
	sb.WriteString(" ")
	sb.WriteString("ENCODING 'internal' ")
	sb.WriteString("ESCAPECHAR ")
	sb.WriteString(quoteChar(ds.Escape))
	sb.WriteString(" ")
	sb.WriteString("FORMAT 'text' ")
	sb.WriteString("INCLUDEZEROSECONDS TRUE ")
	sb.WriteString("NULLVALUE '")
	sb.WriteString(Dialect.NullToken)
	sb.WriteString("' ")
	sb.WriteString(")")

	return warehouse.Statement{SQL: sb.String(), PipePath: pipePath, Table: t.Table, Columns: t.Columns}, nil
}

// Connect implements warehouse.Warehouse.
func (Warehouse) Connect(ctx context.Context, t warehouse.Target) (warehouse.Conn, error) {
	db, err := openSQL(ctx, t.OptString(OptDriver, defaultDriver), t.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "netezza: connect")
	}
	return &warehouse.ExecConn{DB: db, Name: Kind}, nil
}

// quoteChar renders a single-character string literal. Netezza literals do
// not treat backslash specially, so only the quote is doubled.
func quoteChar(r rune) string {
	if r == '\'' {
		return "''''"
	}
	return "'" + string(r) + "'"
}
