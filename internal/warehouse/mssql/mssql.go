// Package mssql loads data with BULK INSERT ... WITH (FORMAT = 'CSV'). The
// statement names the pipe path, so SQL Server must run on the host that owns
// the pipe (SQL Server on Linux, or a shared mount).
//
// BULK INSERT has no escape character: special characters are protected by
// enclosing the field in FIELDQUOTE and doubling quotes inside it.
package mssql

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // registers "sqlserver"
	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/pkg/errors"

	"fifoexport/internal/delimited"
	"fifoexport/internal/warehouse"
)

// Kind is the registry name.
const Kind = "mssql"

// Dialect is RFC 4180 style CSV. An empty unquoted field is NULL under
// KEEPNULLS; an empty string is written as "".
var Dialect = delimited.Dialect{
	Name:            Kind,
	SupportsEnclose: true,
	Enclose:         '"',
	Record:          '\n',
	NullToken:       "",
	Bools:           delimited.BoolOneZero,
	ExtraEscapes:    []rune{'\r'},
}

// Warehouse implements warehouse.Warehouse.
type Warehouse struct{}

var openSQL = warehouse.OpenSQL

func init() { warehouse.Register(Kind, Warehouse{}) }

// Dialect implements warehouse.Warehouse.
func (Warehouse) Dialect() delimited.Dialect { return Dialect }

// Statement implements warehouse.Warehouse. Target columns are not part of
// BULK INSERT; the table (or a view over it) must match the record layout.
func (Warehouse) Statement(t warehouse.Target, pipePath string, ds delimited.DelimiterSet) (warehouse.Statement, error) {
	if strings.TrimSpace(t.Table) == "" {
		return warehouse.Statement{}, errors.New("mssql: table is required")
	}
	sql := fmt.Sprintf(
		"BULK INSERT %s FROM %s WITH (FORMAT = 'CSV', FIELDQUOTE = %s, FIELDTERMINATOR = %s, "+
			"ROWTERMINATOR = %s, CODEPAGE = '65001', KEEPNULLS, TABLOCK)",
		msFQN(t.Table),
		msString(pipePath),
		msString(string(ds.Enclose)),
		msTerminator(ds.Field),
		msTerminator(ds.Record),
	)
	return warehouse.Statement{SQL: sql, PipePath: pipePath, Table: t.Table, Columns: t.Columns}, nil
}

// Connect implements warehouse.Warehouse.
func (Warehouse) Connect(ctx context.Context, t warehouse.Target) (warehouse.Conn, error) {
	if _, err := msdsn.Parse(t.DSN); err != nil {
		return nil, errors.Wrap(err, "mssql: dsn")
	}
	db, err := openSQL(ctx, "sqlserver", t.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "mssql: connect")
	}
	return &warehouse.ExecConn{DB: db, Name: Kind}, nil
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.hr_events".
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}

func msString(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

// msTerminator renders printable terminators literally and everything else
// in the hexadecimal form BULK INSERT accepts.
func msTerminator(r rune) string {
	if r > 0x20 && r < 0x7f {
		return msString(string(r))
	}
	return fmt.Sprintf("'0x%02x'", r)
}
