//go:build !cgo_sqlite

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// initDB opens the fragment database with the pure-Go driver.
func initDB(dataSource string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSource)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY with this driver's default locking.
	db.SetMaxOpenConns(1)
	return db, nil
}
