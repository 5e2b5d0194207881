package db

import (
	_ "github.com/go-sql-driver/mysql"
)

// NewMySQLConnector builds a Connector for MySQL targets addressed by a
// go-sql-driver/mysql DSN (e.g. "user:pass@tcp(host:3306)/db").
func NewMySQLConnector(dsn string) *DriverConnector {
	return NewDriverConnector("mysql", dsn, nil)
}
