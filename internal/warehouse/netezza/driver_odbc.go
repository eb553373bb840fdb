//go:build odbc

package netezza

import _ "github.com/alexbrainman/odbc" // registers "odbc"
