package warehouse

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// PingTimeout bounds the connectivity check in OpenSQL.
var PingTimeout = 10 * time.Second

// sqlOpen is swapped in tests.
var sqlOpen = sql.Open

// OpenSQL opens a database/sql handle limited to one connection and pings it
// so that bad credentials surface before any data is written.
func OpenSQL(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.Errorf("%s: DSN must not be empty", driverName)
	}
	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: open", driverName)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "%s: ping", driverName)
	}
	return db, nil
}

// ExecConn runs the statement text with ExecContext. It serves backends whose
// loader reads the pipe server-side or through the driver.
type ExecConn struct {
	DB   *sql.DB
	Name string
}

// Load implements Conn.
func (c *ExecConn) Load(ctx context.Context, st Statement) (int64, error) {
	res, err := c.DB.ExecContext(ctx, st.SQL)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: load into %s", c.Name, st.Table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report a count for bulk statements.
		return -1, nil
	}
	return n, nil
}

// Close implements Conn.
func (c *ExecConn) Close() error { return c.DB.Close() }
