package vibur_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/vibur/vibur-go"
)

type fakeHandle struct{ native interface{} }

func (h fakeHandle) Native() interface{} { return h.native }

type HooksTestSuite struct {
	suite.Suite
}

func TestHooksTestSuite(t *testing.T) {
	suite.Run(t, new(HooksTestSuite))
}

func (s *HooksTestSuite) TestRunInitConnectionStopsAtFirstError() {
	r := vibur.NewHookRegistry()
	var calls []int
	wantErr := errors.New("init failed")

	r.AddInitConnection(func(ctx context.Context, conn vibur.RawConnHandle) error {
		calls = append(calls, 1)
		return nil
	})
	r.AddInitConnection(func(ctx context.Context, conn vibur.RawConnHandle) error {
		calls = append(calls, 2)
		return wantErr
	})
	r.AddInitConnection(func(ctx context.Context, conn vibur.RawConnHandle) error {
		calls = append(calls, 3)
		return nil
	})

	err := r.RunInitConnection(context.Background(), fakeHandle{})
	s.ErrorIs(err, wantErr)
	s.Equal([]int{1, 2}, calls)
}

func (s *HooksTestSuite) TestRunDestroyConnectionFiresAllUnconditionally() {
	r := vibur.NewHookRegistry()
	var calls int
	r.AddDestroyConnection(func(conn vibur.RawConnHandle) { calls++ })
	r.AddDestroyConnection(func(conn vibur.RawConnHandle) { calls++ })

	r.RunDestroyConnection(fakeHandle{})
	s.Equal(2, calls)
}

func (s *HooksTestSuite) TestRunStatementExecutionChainsOutermostFirst() {
	r := vibur.NewHookRegistry()
	var order []string

	r.AddStatementExecution(func(ctx context.Context, sql string, args []interface{}, proceed func() error) error {
		order = append(order, "outer-before")
		err := proceed()
		order = append(order, "outer-after")
		return err
	})
	r.AddStatementExecution(func(ctx context.Context, sql string, args []interface{}, proceed func() error) error {
		order = append(order, "inner-before")
		err := proceed()
		order = append(order, "inner-after")
		return err
	})

	err := r.RunStatementExecution(context.Background(), "select 1", nil, func() error {
		order = append(order, "real")
		return nil
	})
	s.NoError(err)
	s.Equal([]string{"outer-before", "inner-before", "real", "inner-after", "outer-after"}, order)
}

func (s *HooksTestSuite) TestRunResultSetRetrievalFiresAllHooks() {
	r := vibur.NewHookRegistry()
	var gotCount int
	var gotElapsed time.Duration
	r.AddResultSetRetrieval(func(ctx context.Context, rowCount int, elapsed time.Duration) {
		gotCount = rowCount
		gotElapsed = elapsed
	})

	r.RunResultSetRetrieval(context.Background(), 42, 5*time.Millisecond)
	s.Equal(42, gotCount)
	s.Equal(5*time.Millisecond, gotElapsed)
}

func (s *HooksTestSuite) TestAddAfterMarkStartedPanics() {
	r := vibur.NewHookRegistry()
	r.MarkStarted()
	s.Panics(func() {
		r.AddInitConnection(func(ctx context.Context, conn vibur.RawConnHandle) error { return nil })
	})
}

func (s *HooksTestSuite) TestRunGetConnectionTimeoutFiresAllHooks() {
	r := vibur.NewHookRegistry()
	var got time.Duration
	r.AddGetConnectionTimeout(func(ctx context.Context, timeout time.Duration) { got = timeout })

	r.RunGetConnectionTimeout(context.Background(), 250*time.Millisecond)
	s.Equal(250*time.Millisecond, got)
}
