package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// pgxRawConn adapts *pgx.Conn to RawConn.
type pgxRawConn struct {
	conn *pgx.Conn
}

func (c *pgxRawConn) PingContext(ctx context.Context) error { return c.conn.Ping(ctx) }
func (c *pgxRawConn) Close() error                          { return c.conn.Close(context.Background()) }
func (c *pgxRawConn) Native() interface{}                    { return c.conn }

// PostgresConnector opens one physical Postgres connection per call via
// pgx, bypassing pgxpool entirely: Vibur's own pool is the only pool in
// front of the driver.
type PostgresConnector struct {
	ConnString string
	User       string
	Password   string
}

// NewPostgresConnector builds a Connector for Postgres targets addressed
// by a pgx connection string (e.g. "postgres://host:5432/db").
func NewPostgresConnector(connString string) *PostgresConnector {
	return &PostgresConnector{ConnString: connString}
}

// WithCredentials returns a copy carrying explicit login credentials,
// used for the per-borrow-credentials Connector variant.
func (c *PostgresConnector) WithCredentials(user, password string) *PostgresConnector {
	clone := *c
	clone.User = user
	clone.Password = password
	return &clone
}

func (c *PostgresConnector) Connect(ctx context.Context) (RawConn, error) {
	cfg, err := pgx.ParseConfig(c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("vibur: parsing postgres connection string: %w", err)
	}
	if c.User != "" {
		cfg.User = c.User
	}
	if c.Password != "" {
		cfg.Password = c.Password
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("vibur: connecting to postgres: %w", err)
	}
	return &pgxRawConn{conn: conn}, nil
}
