package db

import (
	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteConnector builds a Connector for a SQLite database file or DSN
// (e.g. "file:pool.db?cache=shared").
func NewSQLiteConnector(dsn string) *DriverConnector {
	return NewDriverConnector("sqlite3", dsn, nil)
}
