// Package mysql loads data with LOAD DATA LOCAL INFILE. The pipe path is
// registered with the driver's local-file allowlist for the duration of the
// statement; the driver opens the pipe and streams it to the server.
package mysql

import (
	"context"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"fifoexport/internal/delimited"
	"fifoexport/internal/warehouse"
)

// Kind is the registry name.
const Kind = "mysql"

// Dialect accepts enclosure and a configurable record delimiter; the escape
// character is fixed to backslash so that \N keeps meaning NULL.
var Dialect = delimited.Dialect{
	Name:            Kind,
	Escape:          '\\',
	SupportsEnclose: true,
	NullToken:       `\N`,
	Bools:           delimited.BoolOneZero,
	ExtraEscapes:    []rune{'\r'},
}

// Warehouse implements warehouse.Warehouse.
type Warehouse struct{}

var (
	openSQL    = warehouse.OpenSQL
	registerFn = mysql.RegisterLocalFile
	releaseFn  = mysql.DeregisterLocalFile
)

func init() { warehouse.Register(Kind, Warehouse{}) }

// Dialect implements warehouse.Warehouse.
func (Warehouse) Dialect() delimited.Dialect { return Dialect }

// Statement implements warehouse.Warehouse.
func (Warehouse) Statement(t warehouse.Target, pipePath string, ds delimited.DelimiterSet) (warehouse.Statement, error) {
	if strings.TrimSpace(t.Table) == "" {
		return warehouse.Statement{}, errors.New("mysql: table is required")
	}

	var sb strings.Builder
	sb.WriteString("LOAD DATA LOCAL INFILE ")
	sb.WriteString(myString(pipePath))
	sb.WriteString(" INTO TABLE ")
	sb.WriteString(myFQN(t.Table))
	sb.WriteString(" CHARACTER SET utf8mb4 FIELDS TERMINATED BY ")
	sb.WriteString(myString(string(ds.Field)))
	if ds.Enclose != 0 {
		if ds.EncloseRequired {
			sb.WriteString(" ENCLOSED BY ")
		} else {
			sb.WriteString(" OPTIONALLY ENCLOSED BY ")
		}
		sb.WriteString(myString(string(ds.Enclose)))
	}
	sb.WriteString(" ESCAPED BY ")
	sb.WriteString(myString(string(ds.Escape)))
	sb.WriteString(" LINES TERMINATED BY ")
	sb.WriteString(myString(string(ds.Record)))
	if len(t.Columns) > 0 {
		sb.WriteString(" (")
		for i, c := range t.Columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(myIdent(c))
		}
		sb.WriteString(")")
	}
	return warehouse.Statement{SQL: sb.String(), PipePath: pipePath, Table: t.Table, Columns: t.Columns}, nil
}

// Connect implements warehouse.Warehouse.
func (Warehouse) Connect(ctx context.Context, t warehouse.Target) (warehouse.Conn, error) {
	if _, err := mysql.ParseDSN(t.DSN); err != nil {
		return nil, errors.Wrap(err, "mysql: dsn")
	}
	db, err := openSQL(ctx, "mysql", t.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "mysql: connect")
	}
	return &Conn{exec: &warehouse.ExecConn{DB: db, Name: Kind}}, nil
}

// Conn runs LOAD DATA with the pipe allowlisted.
type Conn struct {
	exec *warehouse.ExecConn
}

// Load implements warehouse.Conn.
func (c *Conn) Load(ctx context.Context, st warehouse.Statement) (int64, error) {
	registerFn(st.PipePath)
	defer releaseFn(st.PipePath)
	return c.exec.Load(ctx, st)
}

// Close implements warehouse.Conn.
func (c *Conn) Close() error { return c.exec.Close() }

func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

func myFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = myIdent(p)
	}
	return strings.Join(parts, ".")
}

var myEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\x00", `\0`,
)

// myString renders a single-quoted MySQL string literal.
func myString(s string) string { return "'" + myEscaper.Replace(s) + "'" }
