//go:build cgo_sqlite

package chain

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(dbFile string) (*sql.DB, error) {
	return sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL")
}
