//go:build libsql

package sqlite

import (
	_ "github.com/tursodatabase/go-libsql"
)

// The libsql driver needs cgo and ignores _pragma and _txlock parameters.
func init() {
	drivers["libsql"] = driverSpec{
		sqlName: "libsql",
		dsn: func(path string, opts Options) string {
			return "file:" + path
		},
		singleConn: true,
	}
}
