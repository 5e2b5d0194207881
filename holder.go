package vibur

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/vibur/vibur-go/db"
)

// ConnHolder is the unit stored in the pool: one raw database connection
// plus its lifecycle metadata. Exactly one of {in-pool, taken, destroyed}
// is true of a holder at any time; a destroyed holder never reappears,
// and its version never mutates after creation.
type ConnHolder struct {
	id      uint64
	raw     db.RawConn
	version int64

	restoredNanoTime atomic.Int64
	destroyed        atomic.Bool

	// takenNanoTime and lastAccessNanoTime are stamped on every take; stack
	// is captured only when connection tracking is enabled. All three are
	// cleared on restore. goroutineID is not set by this package.
	takenNanoTime      atomic.Int64
	lastAccessNanoTime atomic.Int64
	goroutineID        atomic.Int64
	stack              atomic.Pointer[string]
}

var holderIDSeq atomic.Uint64

func newConnHolder(raw db.RawConn, version int64) *ConnHolder {
	h := &ConnHolder{
		id:      holderIDSeq.Add(1),
		raw:     raw,
		version: version,
	}
	h.restoredNanoTime.Store(time.Now().UnixNano())
	return h
}

// ID uniquely identifies this holder for the lifetime of the process.
func (h *ConnHolder) ID() uint64 { return h.id }

// Version is the factory generation this holder was created under.
func (h *ConnHolder) Version() int64 { return h.version }

// Native returns the driver-specific connection handle.
func (h *ConnHolder) Native() interface{} { return h.raw.Native() }

// RestoredNanoTime is the wall-clock time (Unix nanoseconds) of the last
// return to the pool, used for idle validation.
func (h *ConnHolder) RestoredNanoTime() int64 { return h.restoredNanoTime.Load() }

func (h *ConnHolder) markRestored() { h.restoredNanoTime.Store(time.Now().UnixNano()) }

// markTaken records tracking metadata for a connection being handed out.
// The taken and last-access timestamps are always recorded; the stack
// trace is captured only when the caller opts into tracking, since
// capturing one on every borrow is not free.
func (h *ConnHolder) markTaken(trackingEnabled bool) {
	now := time.Now().UnixNano()
	h.takenNanoTime.Store(now)
	h.lastAccessNanoTime.Store(now)
	if !trackingEnabled {
		return
	}
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	s := string(buf[:n])
	h.stack.Store(&s)
}

// touch updates lastAccessNanoTime so long-running borrows remain
// inspectable via taken-connection reporting.
func (h *ConnHolder) touch() {
	h.lastAccessNanoTime.Store(time.Now().UnixNano())
}

// Touch records proxy activity on this holder; called by the proxy
// layer before every intercepted method so long-running borrows remain
// inspectable via taken-connection reporting.
func (h *ConnHolder) Touch() { h.touch() }

// clearTracking drops tracking fields on restore.
func (h *ConnHolder) clearTracking() {
	h.takenNanoTime.Store(0)
	h.lastAccessNanoTime.Store(0)
	h.stack.Store(nil)
}

// TakenSnapshot is a read-only view of a currently-taken holder exposed
// to observers; its lifetime is bounded by the snapshot call and must
// not be held beyond it.
type TakenSnapshot struct {
	HolderID      uint64
	TakenNanoTime int64
	LastAccess    int64
	Stack         string
}

func (h *ConnHolder) snapshot() TakenSnapshot {
	var stack string
	if p := h.stack.Load(); p != nil {
		stack = *p
	}
	return TakenSnapshot{
		HolderID:      h.id,
		TakenNanoTime: h.takenNanoTime.Load(),
		LastAccess:    h.lastAccessNanoTime.Load(),
		Stack:         stack,
	}
}
