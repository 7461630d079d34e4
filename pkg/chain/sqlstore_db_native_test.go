//go:build !cgo_sqlite

package chain

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

func openTestDB(dbFile string) (*sql.DB, error) {
	return sql.Open("sqlite", dbFile+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
}
