package sqlite

import (
	"fmt"
	"net/url"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func init() {
	drivers["sqlite"] = driverSpec{sqlName: "sqlite3", dsn: ncrucesDSN}
}

// ncrucesDSN builds a file: URI with per-connection pragmas. Pragmas set
// through the DSN apply to every pooled connection, not just the first.
func ncrucesDSN(path string, opts Options) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(wal)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}
