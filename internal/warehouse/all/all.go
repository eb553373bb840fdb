// Package all registers every built-in warehouse backend. Import it for side
// effects from the binary's wiring layer:
//
//	import _ "fifoexport/internal/warehouse/all"
//
// A binary that needs only a subset can import the backend packages directly.
package all

import (
	_ "fifoexport/internal/warehouse/mssql"
	_ "fifoexport/internal/warehouse/mysql"
	_ "fifoexport/internal/warehouse/netezza"
	_ "fifoexport/internal/warehouse/postgres"
	_ "fifoexport/internal/warehouse/sqlite"
)
