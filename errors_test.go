package vibur_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/suite"

	"github.com/vibur/vibur-go"
)

type ErrorsTestSuite struct {
	suite.Suite
}

func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}

func (s *ErrorsTestSuite) TestErrorMessageWithoutCause() {
	err := vibur.NewError(vibur.StateTimeout, "could not obtain connection within 50ms", nil)
	s.Equal("vibur: VI002: could not obtain connection within 50ms", err.Error())
}

func (s *ErrorsTestSuite) TestErrorMessageWithCause() {
	cause := errors.New("connection refused")
	err := vibur.NewError(vibur.StateInitError, "could not create connection", cause)
	s.Equal("vibur: VI003: could not create connection: connection refused", err.Error())
	s.ErrorIs(err, cause)
}

func (s *ErrorsTestSuite) TestConstructors() {
	s.Equal(vibur.StateNotStarted, vibur.ErrNotStarted().State)
	s.Equal(vibur.StateClosed, vibur.ErrPoolClosed().State)
	s.Equal(vibur.StateTimeout, vibur.ErrBorrowTimeout(50).State)
	s.Equal(vibur.StateInitError, vibur.ErrConnectionInit(nil).State)
	s.Equal(vibur.StateObjectClosed, vibur.ErrObjectClosed("connection").State)
	s.Equal(vibur.StateWrapError, vibur.ErrWrapper().State)
}

func (s *ErrorsTestSuite) TestIsMatchesBySQLStateOnly() {
	a := vibur.NewError(vibur.StateTimeout, "first", nil)
	b := vibur.NewError(vibur.StateTimeout, "second", errors.New("boom"))
	c := vibur.NewError(vibur.StateClosed, "third", nil)

	s.True(errors.Is(a, b))
	s.False(errors.Is(a, c))
}

type chainedErr struct {
	state string
	next  error
}

func (e *chainedErr) Error() string    { return fmt.Sprintf("sqlstate %s", e.state) }
func (e *chainedErr) SQLState() string { return e.state }
func (e *chainedErr) NextError() error { return e.next }

func (s *ErrorsTestSuite) TestHasSQLStateDirectMatch() {
	err := &chainedErr{state: "57P01"}
	s.True(vibur.HasSQLState(err, "57P01"))
	s.False(vibur.HasSQLState(err, "08006"))
}

func (s *ErrorsTestSuite) TestHasSQLStateWalksNextErrorChain() {
	root := &chainedErr{state: "40001", next: &chainedErr{state: "57P01"}}
	s.True(vibur.HasSQLState(root, "57P01"))
}

func (s *ErrorsTestSuite) TestHasSQLStateNilError() {
	s.False(vibur.HasSQLState(nil, "57P01"))
}

// database/sql driver errors like *mysql.MySQLError expose their code as
// a Number field, not a SQLState() method; HasSQLState must still
// classify them via db.ExtractSQLState's errno mapping so the proxy
// layer's MySQL connections feed the critical-failure scanner.
func (s *ErrorsTestSuite) TestHasSQLStateClassifiesMySQLServerGoneAway() {
	err := &mysql.MySQLError{Number: 2006, Message: "MySQL server has gone away"}
	s.True(vibur.HasSQLState(err, "08006"))
	s.False(vibur.HasSQLState(err, "57P01"))
}

func (s *ErrorsTestSuite) TestHasSQLStateMySQLUnmappedErrnoMissesEverything() {
	err := &mysql.MySQLError{Number: 1062, Message: "duplicate entry"}
	s.False(vibur.HasSQLState(err, "08006"))
}
