package vibur_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/vibur/vibur-go"
)

type FactoryTestSuite struct {
	suite.Suite
}

func TestFactoryTestSuite(t *testing.T) {
	suite.Run(t, new(FactoryTestSuite))
}

func (s *FactoryTestSuite) newFactory(connector *fakeConnector) *vibur.ConnectionFactory {
	cfg, err := vibur.NewConfigBuilder("t").
		AcquireRetryAttempts(2).
		AcquireRetryDelay(time.Millisecond).
		ConnectionIdleLimit(-1).
		Build()
	s.Require().NoError(err)
	return vibur.NewConnectionFactory(cfg, connector, vibur.NewHookRegistry(), nil, nil)
}

func (s *FactoryTestSuite) TestCreateSucceedsOnFirstAttempt() {
	connector := &fakeConnector{}
	f := s.newFactory(connector)

	h, err := f.Create(context.Background())
	s.Require().NoError(err)
	s.NotNil(h)
	s.Equal(int64(0), h.Version())
}

func (s *FactoryTestSuite) TestCreateRetriesThenSucceeds() {
	connector := &fakeConnector{}
	connector.FailNext(2)
	f := s.newFactory(connector)

	h, err := f.Create(context.Background())
	s.Require().NoError(err)
	s.NotNil(h)
	s.Equal(3, connector.Connects())
}

func (s *FactoryTestSuite) TestCreateExhaustsRetriesAndRaisesVI003() {
	connector := &fakeConnector{}
	connector.FailNext(10)
	f := s.newFactory(connector)

	h, err := f.Create(context.Background())
	s.Nil(h)
	s.Require().Error(err)

	var viburErr *vibur.ViburError
	s.Require().True(errors.As(err, &viburErr))
	s.Equal(vibur.StateInitError, viburErr.State)
}

func (s *FactoryTestSuite) TestBumpVersionOnlyOneCallerWins() {
	f := s.newFactory(&fakeConnector{})
	ok1 := f.BumpVersion(0)
	ok2 := f.BumpVersion(0)
	s.True(ok1)
	s.False(ok2)
	s.Equal(int64(1), f.Version())
}

func (s *FactoryTestSuite) TestReadyToTakeRejectsStaleVersion() {
	connector := &fakeConnector{}
	f := s.newFactory(connector)
	h, err := f.Create(context.Background())
	s.Require().NoError(err)

	f.BumpVersion(0)
	s.False(f.ReadyToTake(context.Background(), h))
}

func (s *FactoryTestSuite) TestReadyToTakeAcceptsCurrentVersion() {
	connector := &fakeConnector{}
	f := s.newFactory(connector)
	h, err := f.Create(context.Background())
	s.Require().NoError(err)

	s.True(f.ReadyToTake(context.Background(), h))
}

func (s *FactoryTestSuite) TestDestroyIsIdempotent() {
	connector := &fakeConnector{}
	f := s.newFactory(connector)
	h, err := f.Create(context.Background())
	s.Require().NoError(err)

	var evicted int
	evictCache := func(connID uint64) { evicted++ }

	f.Destroy(h, evictCache)
	f.Destroy(h, evictCache)
	s.Equal(1, evicted)
}
