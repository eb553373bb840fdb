// Package warehouse contains the backend-agnostic contracts between the export
// driver and a data warehouse bulk loader, plus the registry that backends add
// themselves to from init.
//
// A backend renders the load statement for a pipe path (Statement), opens a
// connection (Connect) and runs the statement on that connection (Conn.Load).
// Load blocks until the loader has read the pipe to end-of-stream and
// ingested every record, or failed.
package warehouse

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fifoexport/internal/delimited"
)

// Target identifies the destination table. DSN and Options are opaque to the
// export core and interpreted by the backend.
type Target struct {
	Kind    string
	DSN     string
	Table   string
	Columns []string
	Options map[string]any
}

// Statement is a rendered bulk-load statement bound to one pipe.
type Statement struct {
	SQL        string
	PipePath   string
	Table      string
	Columns    []string
	Delimiters delimited.DelimiterSet
	Dialect    delimited.Dialect
}

// Warehouse is implemented by each backend.
type Warehouse interface {
	Dialect() delimited.Dialect
	Statement(t Target, pipePath string, ds delimited.DelimiterSet) (Statement, error)
	Connect(ctx context.Context, t Target) (Conn, error)
}

// Conn is an open warehouse connection. Load executes st once and returns the
// number of rows the warehouse reports as loaded.
type Conn interface {
	Load(ctx context.Context, st Statement) (int64, error)
	Close() error
}

var (
	mu       sync.RWMutex
	registry = map[string]Warehouse{}
)

// Register makes a backend available under kind. It panics on duplicates,
// like database/sql.Register.
func Register(kind string, w Warehouse) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		panic("warehouse: Register backend is nil")
	}
	if _, dup := registry[kind]; dup {
		panic("warehouse: Register called twice for " + kind)
	}
	registry[kind] = w
}

// Lookup returns the backend registered under kind.
func Lookup(kind string) (Warehouse, error) {
	mu.RLock()
	defer mu.RUnlock()
	w, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("warehouse: unknown kind %q (registered: %v)", kind, kindsLocked())
	}
	return w, nil
}

// Kinds lists registered backends in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	return kindsLocked()
}

func kindsLocked() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Render builds the statement for t after normalizing ds against the backend
// dialect. Downgrade warnings are returned for the caller to log once.
func Render(w Warehouse, t Target, pipePath string, ds delimited.DelimiterSet) (Statement, []delimited.Warning, error) {
	d := w.Dialect()
	nds, warns, err := delimited.Normalize(ds, d)
	if err != nil {
		return Statement{}, warns, err
	}
	st, err := w.Statement(t, pipePath, nds)
	if err != nil {
		return Statement{}, warns, err
	}
	st.Delimiters = nds
	st.Dialect = d
	if st.PipePath == "" {
		st.PipePath = pipePath
	}
	return st, warns, nil
}
