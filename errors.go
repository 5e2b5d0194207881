package vibur

import (
	"errors"
	"fmt"

	"github.com/vibur/vibur-go/db"
)

// SQLState is one of Vibur's own outbound error codes, distinct from the
// SQLSTATE values reported by the underlying database driver.
type SQLState string

const (
	// StateNotStarted is raised when a DataSource is used before start().
	StateNotStarted SQLState = "VI000"
	// StateClosed is raised when borrow is attempted on a terminated pool.
	StateClosed SQLState = "VI001"
	// StateTimeout is raised when borrow exceeds its configured timeout.
	StateTimeout SQLState = "VI002"
	// StateInitError is raised when connection creation fails after
	// exhausting its retry budget.
	StateInitError SQLState = "VI003"
	// StateObjectClosed is raised by any proxy method invoked after close.
	StateObjectClosed SQLState = "VI004"
	// StateWrapError is raised by unwrap when allowUnwrapping is not set.
	StateWrapError SQLState = "VI005"
)

// ViburError is the single error type this module raises. It always
// carries one of the SQLState codes above, and may wrap an underlying
// cause (e.g. the driver error that caused connection creation to fail).
type ViburError struct {
	State   SQLState
	Message string
	Cause   error
}

func (e *ViburError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vibur: %s: %s: %v", e.State, e.Message, e.Cause)
	}
	return fmt.Sprintf("vibur: %s: %s", e.State, e.Message)
}

func (e *ViburError) Unwrap() error { return e.Cause }

// Is reports whether target is a *ViburError with the same SQLState,
// allowing callers to write errors.Is(err, &ViburError{State: StateTimeout}).
func (e *ViburError) Is(target error) bool {
	var other *ViburError
	if !errors.As(target, &other) {
		return false
	}
	return e.State == other.State
}

// NewError constructs a ViburError, optionally wrapping cause.
func NewError(state SQLState, message string, cause error) *ViburError {
	return &ViburError{State: state, Message: message, Cause: cause}
}

// ErrNotStarted is returned when the pool is used before start().
func ErrNotStarted() *ViburError {
	return NewError(StateNotStarted, "pool has not been started", nil)
}

// ErrPoolClosed is returned when borrow finds the pool terminated.
func ErrPoolClosed() *ViburError {
	return NewError(StateClosed, "pool is terminated", nil)
}

// ErrBorrowTimeout is returned when borrow exceeds its configured timeout.
func ErrBorrowTimeout(timeoutMs int) *ViburError {
	return NewError(StateTimeout, fmt.Sprintf("could not obtain connection within %dms", timeoutMs), nil)
}

// ErrConnectionInit is returned when connection creation fails after
// exhausting acquireRetryAttempts+1 tries.
func ErrConnectionInit(cause error) *ViburError {
	return NewError(StateInitError, "could not create connection", cause)
}

// ErrObjectClosed is returned by any intercepted call on a closed proxy.
func ErrObjectClosed(kind string) *ViburError {
	return NewError(StateObjectClosed, fmt.Sprintf("%s is closed", kind), nil)
}

// ErrWrapper is returned by unwrap when allowUnwrapping is not enabled.
func ErrWrapper() *ViburError {
	return NewError(StateWrapError, "unwrapping is not allowed", nil)
}

// HasSQLState reports whether err or any error in its chain — including
// driver-specific exception chains exposed via NextError — carries the
// given database SQLSTATE. This is used by the critical-failure scanner
// to decide whether a restore should trigger a version bump and drain.
func HasSQLState(err error, state string) bool {
	for err != nil {
		if s := sqlStateOf(err); s == state {
			return true
		}
		if chain, ok := err.(interface{ NextError() error }); ok {
			if next := chain.NextError(); next != nil && HasSQLState(next, state) {
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// sqlStateOf extracts a database SQLSTATE from err if it exposes one.
// It checks the generic SQLState() method first, then falls back to
// db.ExtractSQLState, which knows how to pull a SQLSTATE out of the
// concrete driver error types (e.g. *mysql.MySQLError) that expose it
// as a field rather than that method — the shape the proxy layer's
// database/sql-based drivers actually raise.
func sqlStateOf(err error) string {
	if s, ok := err.(interface{ SQLState() string }); ok {
		return s.SQLState()
	}
	return db.ExtractSQLState(err)
}
