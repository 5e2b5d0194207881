package vibur

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

type fakeRawConn struct {
	pingErr error
	closed  bool
	native  interface{}
}

func (c *fakeRawConn) PingContext(ctx context.Context) error { return c.pingErr }
func (c *fakeRawConn) Close() error                          { c.closed = true; return nil }
func (c *fakeRawConn) Native() interface{}                    { return c.native }

type ConnHolderTestSuite struct {
	suite.Suite
}

func TestConnHolderTestSuite(t *testing.T) {
	suite.Run(t, new(ConnHolderTestSuite))
}

func (s *ConnHolderTestSuite) TestNewConnHolderAssignsUniqueIDsAndVersion() {
	raw := &fakeRawConn{native: "a"}
	h1 := newConnHolder(raw, 3)
	h2 := newConnHolder(raw, 3)

	s.NotEqual(h1.ID(), h2.ID())
	s.Equal(int64(3), h1.Version())
	s.NotZero(h1.RestoredNanoTime())
}

func (s *ConnHolderTestSuite) TestNativeDelegatesToRawConn() {
	raw := &fakeRawConn{native: "marker"}
	h := newConnHolder(raw, 0)
	s.Equal("marker", h.Native())
}

func (s *ConnHolderTestSuite) TestMarkTakenWithoutTrackingSkipsStack() {
	h := newConnHolder(&fakeRawConn{}, 0)
	h.markTaken(false)
	snap := h.snapshot()
	s.NotZero(snap.TakenNanoTime)
	s.Empty(snap.Stack)
}

func (s *ConnHolderTestSuite) TestMarkTakenWithTrackingCapturesStack() {
	h := newConnHolder(&fakeRawConn{}, 0)
	h.markTaken(true)
	snap := h.snapshot()
	s.NotEmpty(snap.Stack)
}

func (s *ConnHolderTestSuite) TestTouchUpdatesLastAccess() {
	h := newConnHolder(&fakeRawConn{}, 0)
	h.markTaken(false)
	before := h.snapshot().LastAccess
	h.Touch()
	after := h.snapshot().LastAccess
	s.GreaterOrEqual(after, before)
}

func (s *ConnHolderTestSuite) TestClearTrackingResetsFields() {
	h := newConnHolder(&fakeRawConn{}, 0)
	h.markTaken(true)
	h.clearTracking()
	snap := h.snapshot()
	s.Zero(snap.TakenNanoTime)
	s.Zero(snap.LastAccess)
	s.Empty(snap.Stack)
}

func (s *ConnHolderTestSuite) TestMarkRestoredAdvancesTimestamp() {
	h := newConnHolder(&fakeRawConn{}, 0)
	first := h.RestoredNanoTime()
	h.markRestored()
	s.GreaterOrEqual(h.RestoredNanoTime(), first)
}

func (s *ConnHolderTestSuite) TestPingErrorSurfacesThroughRawConn() {
	wantErr := errors.New("connection reset")
	h := newConnHolder(&fakeRawConn{pingErr: wantErr}, 0)
	err := h.raw.PingContext(context.Background())
	s.ErrorIs(err, wantErr)
}
