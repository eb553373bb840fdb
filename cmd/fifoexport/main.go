// Command fifoexport streams input files into a warehouse table through a
// named pipe, one bulk-load attempt per input.
//
//	fifoexport export --config job.yaml
//	fifoexport validate --config job.yaml
//	fifoexport statement --config job.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"fifoexport/internal/export"

	_ "fifoexport/internal/warehouse/all"
)

// Exit codes. Scripts key off these, keep them stable.
const (
	exitOK = iota
	exitFailure
	exitConfig
	exitRecord
	exitLoad
	exitConnection
	exitResource
)

func main() {
	rc := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := rc.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *configError
	if errors.As(err, &ce) {
		return exitConfig
	}
	switch export.KindOf(err) {
	case export.KindConfig:
		return exitConfig
	case export.KindRecord:
		return exitRecord
	case export.KindLoadStatement:
		return exitLoad
	case export.KindConnection:
		return exitConnection
	case export.KindResource, export.KindIO:
		return exitResource
	}
	return exitFailure
}
