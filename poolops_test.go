package vibur_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/vibur/vibur-go"
)

type sqlStateErr struct{ state string }

func (e sqlStateErr) Error() string   { return "driver error " + e.state }
func (e sqlStateErr) SQLState() string { return e.state }

type PoolOperationsTestSuite struct {
	suite.Suite
}

func TestPoolOperationsTestSuite(t *testing.T) {
	suite.Run(t, new(PoolOperationsTestSuite))
}

func (s *PoolOperationsTestSuite) build(maxSize, initialSize int) (*vibur.PoolOperations, *vibur.Pool, *vibur.ConnectionFactory) {
	connector := &fakeConnector{}
	cfg, err := vibur.NewConfigBuilder("t").
		PoolMaxSize(maxSize).
		PoolInitialSize(initialSize).
		ConnectionIdleLimit(-1).
		CriticalSQLStates([]string{"08006"}).
		Build()
	s.Require().NoError(err)

	factory := vibur.NewConnectionFactory(cfg, connector, vibur.NewHookRegistry(), nil, nil)
	pool := vibur.NewPool(factory, cfg.PoolMaxSize, cfg.PoolFair, cfg.PoolFifo, nil)
	s.Require().NoError(pool.Start(context.Background(), initialSize))
	ops := vibur.NewPoolOperations(pool, factory, vibur.NewHookRegistry(), cfg, nil)
	return ops, pool, factory
}

func (s *PoolOperationsTestSuite) TestBorrowReturnsHolderWithinTimeout() {
	ops, _, _ := s.build(2, 1)
	h, err := ops.Borrow(context.Background(), time.Second)
	s.Require().NoError(err)
	s.NotNil(h)
}

func (s *PoolOperationsTestSuite) TestBorrowTimesOutWithVI002() {
	ops, pool, _ := s.build(1, 1)
	_, err := ops.Borrow(context.Background(), time.Second)
	s.Require().NoError(err)

	_, err = ops.Borrow(context.Background(), 20*time.Millisecond)
	s.Require().Error(err)
	var viburErr *vibur.ViburError
	s.Require().True(errors.As(err, &viburErr))
	s.Equal(vibur.StateTimeout, viburErr.State)
	s.Equal(1, pool.Created())
}

func (s *PoolOperationsTestSuite) TestBorrowAfterTerminateReturnsVI001() {
	ops, pool, _ := s.build(1, 0)
	pool.Terminate()

	_, err := ops.Borrow(context.Background(), time.Second)
	s.Require().Error(err)
	var viburErr *vibur.ViburError
	s.Require().True(errors.As(err, &viburErr))
	s.Equal(vibur.StateClosed, viburErr.State)
}

func (s *PoolOperationsTestSuite) TestRestoreReturnsHolderToIdleWhenReusable() {
	ops, pool, _ := s.build(2, 1)
	h, err := ops.Borrow(context.Background(), time.Second)
	s.Require().NoError(err)

	ops.Restore(context.Background(), h, true, nil)
	s.Equal(1, pool.IdleCount())
}

func (s *PoolOperationsTestSuite) TestRestoreWithCriticalErrorDrainsPool() {
	ops, pool, factory := s.build(3, 3)
	h, err := ops.Borrow(context.Background(), time.Second)
	s.Require().NoError(err)

	beforeVersion := factory.Version()
	ops.Restore(context.Background(), h, true, []error{sqlStateErr{state: "08006"}})

	s.Equal(beforeVersion+1, factory.Version())
	s.Equal(0, pool.Created())
}

func (s *PoolOperationsTestSuite) TestRestoreWithNonCriticalErrorDestroysOnlyThatHolder() {
	ops, pool, factory := s.build(3, 2)
	h, err := ops.Borrow(context.Background(), time.Second)
	s.Require().NoError(err)

	beforeVersion := factory.Version()
	ops.Restore(context.Background(), h, false, []error{errors.New("plain error")})

	s.Equal(beforeVersion, factory.Version())
	s.Equal(1, pool.Created())
}
