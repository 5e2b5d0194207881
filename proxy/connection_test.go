package proxy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/vibur/vibur-go"
	"github.com/vibur/vibur-go/db"
	"github.com/vibur/vibur-go/proxy"
	"github.com/vibur/vibur-go/stmtcache"
)

// ProxyTestSuite exercises the proxy layer against a real SQLite
// connection obtained through the same DataSource/pool path an
// application would use, rather than a hand-rolled database/sql fake.
type ProxyTestSuite struct {
	suite.Suite

	ds    *vibur.DataSource
	cache *stmtcache.Cache
	cfg   *vibur.Config
}

func TestProxyTestSuite(t *testing.T) {
	suite.Run(t, new(ProxyTestSuite))
}

func (s *ProxyTestSuite) SetupTest() {
	cfg, err := vibur.NewConfigBuilder("proxy-test").
		PoolInitialSize(1).
		PoolMaxSize(1).
		ConnectionIdleLimit(-1).
		StatementCacheMaxSize(10).
		Build()
	s.Require().NoError(err)

	connector := db.NewSQLiteConnector(":memory:")
	ds := vibur.NewDataSource(cfg, connector, nil, nil)
	s.Require().NoError(ds.Start(context.Background()))

	s.ds = ds
	s.cfg = cfg
	s.cache = ds.StatementCache()
}

func (s *ProxyTestSuite) TearDownTest() {
	s.ds.Terminate()
}

func (s *ProxyTestSuite) newConnection() *proxy.Connection {
	holder, err := s.ds.GetConnection(context.Background())
	s.Require().NoError(err)

	conn, err := proxy.New(holder, s.ds.Operations(), s.ds.Hooks(), s.cache, s.cfg, nil)
	s.Require().NoError(err)
	return conn
}

func (s *ProxyTestSuite) TestExecAndQueryRoundTrip() {
	conn := s.newConnection()
	defer conn.Close()

	_, err := conn.ExecContext(context.Background(), "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)")
	s.Require().NoError(err)

	_, err = conn.ExecContext(context.Background(), "INSERT INTO t (name) VALUES (?)", "alice")
	s.Require().NoError(err)

	rows, err := conn.QueryContext(context.Background(), "SELECT name FROM t WHERE id = ?", 1)
	s.Require().NoError(err)
	defer rows.Close()

	s.True(rows.Next())
	var name string
	s.Require().NoError(rows.Scan(&name))
	s.Equal("alice", name)
}

func (s *ProxyTestSuite) TestClosedConnectionRejectsCalls() {
	conn := s.newConnection()
	s.Require().NoError(conn.Close())

	_, err := conn.ExecContext(context.Background(), "SELECT 1")
	s.Require().Error(err)

	var viburErr *vibur.ViburError
	s.Require().ErrorAs(err, &viburErr)
	s.Equal(vibur.StateObjectClosed, viburErr.State)
}

func (s *ProxyTestSuite) TestDoubleCloseIsIdempotent() {
	conn := s.newConnection()
	s.Require().NoError(conn.Close())
	s.Require().NoError(conn.Close())
}

func (s *ProxyTestSuite) TestPrepareContextCachesStatement() {
	conn := s.newConnection()
	defer conn.Close()

	_, err := conn.ExecContext(context.Background(), "CREATE TABLE t2 (id INTEGER PRIMARY KEY)")
	s.Require().NoError(err)

	stmt1, err := conn.PrepareContext(context.Background(), "INSERT INTO t2 (id) VALUES (?)")
	s.Require().NoError(err)
	s.Require().NoError(stmt1.Close())

	stmt2, err := conn.PrepareContext(context.Background(), "INSERT INTO t2 (id) VALUES (?)")
	s.Require().NoError(err)
	defer stmt2.Close()

	_, err = stmt2.ExecContext(context.Background(), 1)
	s.Require().NoError(err)
}
