package vibur_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vibur/vibur-go/db"
)

// fakeRawConn is a minimal db.RawConn used across the vibur_test package.
type fakeRawConn struct {
	id      int64
	pingErr error
	closed  atomic.Bool
}

func (c *fakeRawConn) PingContext(ctx context.Context) error { return c.pingErr }
func (c *fakeRawConn) Close() error                          { c.closed.Store(true); return nil }
func (c *fakeRawConn) Native() interface{}                    { return c }

// fakeConnector produces fakeRawConns and can be toggled to fail, letting
// tests drive factory/pool error paths without a real driver.
type fakeConnector struct {
	mu       sync.Mutex
	nextID   int64
	failNext int
	connects int
}

func (c *fakeConnector) Connect(ctx context.Context) (db.RawConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.failNext > 0 {
		c.failNext--
		return nil, errConnectFailed
	}
	c.nextID++
	return &fakeRawConn{id: c.nextID}, nil
}

func (c *fakeConnector) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *fakeConnector) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}

type connectFailedErr struct{}

func (connectFailedErr) Error() string { return "fake connector: connect failed" }

var errConnectFailed error = connectFailedErr{}
