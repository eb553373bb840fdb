package export

import (
	"errors"
	"fmt"
)

// Kind classifies why an export attempt failed.
type Kind int

const (
	// KindResource: the pipe could not be created or prepared.
	KindResource Kind = iota + 1
	// KindConnection: the warehouse connection could not be established.
	KindConnection
	// KindIO: opening or writing the pipe failed, or the attempt was
	// interrupted while streaming or joining.
	KindIO
	// KindLoadStatement: the warehouse rejected or failed the bulk load.
	KindLoadStatement
	// KindRecord: the input could not be opened, or a record could not be
	// read or encoded.
	KindRecord
	// KindConfig: the target or delimiter settings cannot produce a load
	// statement. Nothing was created or executed.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindResource:
		return "resource"
	case KindConnection:
		return "connection"
	case KindIO:
		return "io"
	case KindLoadStatement:
		return "load statement"
	case KindRecord:
		return "record"
	case KindConfig:
		return "config"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrAborted is the cause recorded when the driver cancelled the load
// because of its own failure.
var ErrAborted = errors.New("export: load aborted")

// Error is the typed failure returned by Driver.Run.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return "export: " + e.Kind.String() + " error: " + e.Err.Error()
	}
	return "export: " + e.Kind.String() + " error: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}
