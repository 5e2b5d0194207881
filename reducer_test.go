package vibur_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/vibur/vibur-go"
)

type ReducerTestSuite struct {
	suite.Suite
}

func TestReducerTestSuite(t *testing.T) {
	suite.Run(t, new(ReducerTestSuite))
}

func (s *ReducerTestSuite) newPool(maxSize, initialSize int) *vibur.Pool {
	connector := &fakeConnector{}
	cfg, err := vibur.NewConfigBuilder("t").
		PoolMaxSize(maxSize).
		ConnectionIdleLimit(-1).
		Build()
	s.Require().NoError(err)
	factory := vibur.NewConnectionFactory(cfg, connector, vibur.NewHookRegistry(), nil, nil)
	pool := vibur.NewPool(factory, maxSize, cfg.PoolFair, cfg.PoolFifo, nil)
	s.Require().NoError(pool.Start(context.Background(), initialSize))
	return pool
}

func (s *ReducerTestSuite) TestReducerTrimsDownToMinimumObservedIdleFloorAtInitialSize() {
	pool := s.newPool(5, 5)
	reducer := vibur.NewPoolReducer(pool, 30*time.Millisecond, 3, 2, nil, nil)
	reducer.Start()
	defer reducer.Terminate()

	s.Eventually(func() bool {
		return pool.Created() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *ReducerTestSuite) TestReducerNeverDestroysBelowInitialSize() {
	pool := s.newPool(5, 3)
	reducer := vibur.NewPoolReducer(pool, 20*time.Millisecond, 2, 3, nil, nil)
	reducer.Start()
	defer reducer.Terminate()

	time.Sleep(200 * time.Millisecond)
	s.Equal(3, pool.Created())
}

func (s *ReducerTestSuite) TestTerminateStopsSamplingLoop() {
	pool := s.newPool(5, 5)
	reducer := vibur.NewPoolReducer(pool, 10*time.Millisecond, 2, 0, nil, nil)
	reducer.Start()
	reducer.Terminate()

	createdAfterStop := pool.Created()
	time.Sleep(50 * time.Millisecond)
	s.Equal(createdAfterStop, pool.Created())
}

func (s *ReducerTestSuite) TestTerminateIsIdempotent() {
	pool := s.newPool(2, 2)
	reducer := vibur.NewPoolReducer(pool, time.Second, 1, 0, nil, nil)
	reducer.Start()
	reducer.Terminate()
	s.NotPanics(func() { reducer.Terminate() })
}
