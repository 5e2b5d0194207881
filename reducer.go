package vibur

import (
	"context"
	"time"

	"github.com/vibur/vibur-go/instrumentation"
	"github.com/vibur/vibur-go/logging"
)

// PoolReducer is the background worker (C6) that samples idle usage and
// trims surplus connections. Each period T = ReducerTimeInterval, it
// takes S = ReducerSamples evenly spaced samples of the pool's idle
// count; at period end it destroys up to the minimum observed idle
// count over the period, clamped so created never drops below
// initialSize.
type PoolReducer struct {
	pool        *Pool
	interval    time.Duration
	samples     int
	initialSize int
	logger      logging.Logger
	metrics     *instrumentation.PrometheusMetrics

	stop chan struct{}
	done chan struct{}
}

// NewPoolReducer builds a reducer bound to pool. Start must be called to
// launch its background goroutine. metrics may be nil.
func NewPoolReducer(pool *Pool, interval time.Duration, samples, initialSize int, logger logging.Logger, metrics *instrumentation.PrometheusMetrics) *PoolReducer {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &PoolReducer{
		pool:        pool,
		interval:    interval,
		samples:     samples,
		initialSize: initialSize,
		logger:      logger,
		metrics:     metrics,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the reducer's sampling loop in its own goroutine.
func (r *PoolReducer) Start() {
	go r.run()
}

// Terminate stops the reducer and blocks until its goroutine exits. It
// is idempotent.
func (r *PoolReducer) Terminate() {
	select {
	case <-r.stop:
		// already stopped
	default:
		close(r.stop)
	}
	<-r.done
}

// trimOnce asks the pool to destroy up to n idle holders, recovering
// from any panic inside Pool.DestroyIdle so a programmer error there
// terminates only the reducer, never the pool. Returns false on such a
// panic.
func (r *PoolReducer) trimOnce(n int) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.LogPool(context.Background(), logging.PoolReducerError, logging.Any("panic", rec))
			ok = false
		}
	}()
	destroyed := r.pool.DestroyIdle(n, r.initialSize)
	if destroyed > 0 {
		r.logger.LogPool(context.Background(), logging.PoolReducerTrim, logging.Int("count", destroyed))
		if r.metrics != nil {
			r.metrics.AddReducerTrims(destroyed)
		}
	}
	return true
}

func (r *PoolReducer) run() {
	defer close(r.done)

	if r.samples <= 0 || r.interval <= 0 {
		return
	}
	sampleInterval := r.interval / time.Duration(r.samples)
	if sampleInterval <= 0 {
		sampleInterval = r.interval
	}

	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	minIdle := -1
	taken := 0

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			idle := r.pool.IdleCount()
			if minIdle < 0 || idle < minIdle {
				minIdle = idle
			}
			taken++

			if taken < r.samples {
				continue
			}

			n := minIdle
			minIdle = -1
			taken = 0
			if n <= 0 {
				continue
			}

			if !r.trimOnce(n) {
				// An unexpected programmer error terminates the reducer
				// itself, never the pool: idle connections stop being
				// reclaimed but borrowing continues unaffected.
				return
			}
		}
	}
}
