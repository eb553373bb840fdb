// Package postgres loads data with COPY ... FROM STDIN over the pgx protocol
// connection. The loader goroutine opens the read side of the pipe and feeds
// it to CopyFrom, so the server never needs access to the pipe path.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"fifoexport/internal/delimited"
	"fifoexport/internal/fifo"
	"fifoexport/internal/warehouse"
)

// Kind is the registry name.
const Kind = "postgres"

// Dialect is the COPY text format: backslash escapes, \N for NULL, t/f.
var Dialect = delimited.Dialect{
	Name:          Kind,
	Escape:        '\\',
	Record:        '\n',
	NullToken:     `\N`,
	Bools:         delimited.BoolTF,
	ExtraEscapes:  []rune{'\r'},
	EscapeLetters: map[rune]rune{
		'\n': 'n',
		'\r': 'r',
		'\t': 't',
	},
}

// Warehouse implements warehouse.Warehouse.
type Warehouse struct{}

var (
	connect  = pgx.Connect
	openPipe = fifo.OpenRead
)

func init() { warehouse.Register(Kind, Warehouse{}) }

// Dialect implements warehouse.Warehouse.
func (Warehouse) Dialect() delimited.Dialect { return Dialect }

// Statement implements warehouse.Warehouse.
func (Warehouse) Statement(t warehouse.Target, pipePath string, ds delimited.DelimiterSet) (warehouse.Statement, error) {
	if strings.TrimSpace(t.Table) == "" {
		return warehouse.Statement{}, errors.New("postgres: table is required")
	}
	if ds.Field > 0x7f {
		return warehouse.Statement{}, errors.Errorf("postgres: field delimiter %q must be a single-byte character", ds.Field)
	}

	var sb strings.Builder
	sb.WriteString("COPY ")
	sb.WriteString(pgFQN(t.Table))
	if len(t.Columns) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(mapIdent(t.Columns), ", "))
		sb.WriteString(")")
	}
	fmt.Fprintf(&sb, " FROM STDIN WITH (FORMAT text, DELIMITER %s, NULL '%s', ENCODING 'UTF8')",
		pgChar(ds.Field), Dialect.NullToken)

	return warehouse.Statement{SQL: sb.String(), PipePath: pipePath, Table: t.Table, Columns: t.Columns}, nil
}

// Connect implements warehouse.Warehouse.
func (Warehouse) Connect(ctx context.Context, t warehouse.Target) (warehouse.Conn, error) {
	if strings.TrimSpace(t.DSN) == "" {
		return nil, errors.New("postgres: DSN must not be empty")
	}
	conn, err := connect(ctx, t.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: connect")
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(context.Background())
		return nil, errors.Wrap(err, "postgres: ping")
	}
	return &Conn{conn: conn}, nil
}

// Conn is one pgx connection dedicated to a single COPY.
type Conn struct {
	conn *pgx.Conn
}

// Load opens the pipe for reading and streams it into COPY. Cancelling ctx
// aborts the COPY, which rolls it back.
func (c *Conn) Load(ctx context.Context, st warehouse.Statement) (int64, error) {
	f, err := openPipe(ctx, st.PipePath)
	if err != nil {
		return 0, errors.Wrap(err, "postgres: open pipe")
	}
	defer f.Close()

	tag, err := c.conn.PgConn().CopyFrom(ctx, f, st.SQL)
	if err != nil {
		return 0, errors.Wrapf(err, "postgres: copy into %s", st.Table)
	}
	return tag.RowsAffected(), nil
}

// Close implements warehouse.Conn.
func (c *Conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.conn.Close(ctx)
}

// pgIdent safely quotes a Postgres identifier, escaping embedded quotes.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.hr_events".
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}

// pgChar renders a one-character literal, using an escape string for control
// characters.
func pgChar(r rune) string {
	switch {
	case r == '\'':
		return "''''"
	case r == '\\':
		return `E'\\'`
	case r < 0x20 || r == 0x7f:
		return fmt.Sprintf(`E'\x%02x'`, r)
	default:
		return "'" + string(r) + "'"
	}
}
