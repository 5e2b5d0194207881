package vibur

import (
	"container/list"
	"context"
	"sync"
)

// Pool is the bounded pool of ConnHolders (C5): FIFO/LIFO idle ordering,
// a fair or unfair wait queue, and take/tryTake/restore/drain/terminate.
//
// taken + idle = created ≤ maxSize at all times; waiters block only
// when idle is empty and created has already reached maxSize.
type Pool struct {
	factory *ConnectionFactory
	fifo    bool
	maxSize int

	mu         sync.Mutex
	idle       *list.List // front = next to be taken
	created    int
	terminated bool

	waiters *waitQueue

	evictCache func(connID uint64)
}

// NewPool constructs a pool; Start must be called before Take/TryTake.
func NewPool(factory *ConnectionFactory, maxSize int, fair, fifo bool, evictCache func(connID uint64)) *Pool {
	return &Pool{
		factory:    factory,
		fifo:       fifo,
		maxSize:    maxSize,
		idle:       list.New(),
		waiters:    newWaitQueue(fair),
		evictCache: evictCache,
	}
}

// Start preallocates initialSize holders. If any creation fails, the
// holders created so far are destroyed and the error is returned.
func (p *Pool) Start(ctx context.Context, initialSize int) error {
	created := make([]*ConnHolder, 0, initialSize)
	for i := 0; i < initialSize; i++ {
		h, err := p.factory.Create(ctx)
		if err != nil {
			for _, c := range created {
				p.factory.Destroy(c, p.evictCache)
			}
			return err
		}
		created = append(created, h)
	}

	p.mu.Lock()
	p.created = len(created)
	for _, h := range created {
		p.pushIdleLocked(h)
	}
	p.mu.Unlock()
	return nil
}

func (p *Pool) pushIdleLocked(h *ConnHolder) {
	if p.fifo {
		p.idle.PushBack(h)
	} else {
		p.idle.PushFront(h)
	}
}

// Take waits for a holder until ctx is done; it is the same call as
// TryTake and blocks indefinitely only when ctx never expires.
func (p *Pool) Take(ctx context.Context) (*ConnHolder, error) {
	return p.tryTake(ctx)
}

// TryTake waits for a holder until ctx is done, returning (nil, nil) on
// deadline without having consumed a capacity slot — matching the "null
// on timeout" contract from the specification.
func (p *Pool) TryTake(ctx context.Context) (*ConnHolder, error) {
	return p.tryTake(ctx)
}

func (p *Pool) tryTake(ctx context.Context) (*ConnHolder, error) {
	for {
		p.mu.Lock()
		if p.terminated {
			p.mu.Unlock()
			return nil, nil
		}

		if front := p.idle.Front(); front != nil {
			h := front.Value.(*ConnHolder)
			p.idle.Remove(front)
			p.mu.Unlock()

			if p.factory.ReadyToTake(ctx, h) {
				return h, nil
			}
			p.factory.Destroy(h, p.evictCache)
			p.mu.Lock()
			p.created--
			p.waiters.notifyOneLocked()
			p.mu.Unlock()
			continue
		}

		if p.created < p.maxSize {
			p.created++
			p.mu.Unlock()

			h, err := p.factory.Create(ctx)
			if err != nil {
				p.mu.Lock()
				p.created--
				p.waiters.notifyOneLocked()
				p.mu.Unlock()
				return nil, err
			}

			if p.factory.ReadyToTake(ctx, h) {
				return h, nil
			}
			p.factory.Destroy(h, p.evictCache)
			p.mu.Lock()
			p.created--
			p.waiters.notifyOneLocked()
			p.mu.Unlock()
			continue
		}

		wake, cancel := p.waiters.register()
		p.mu.Unlock()

		select {
		case <-wake:
			continue
		case <-ctx.Done():
			p.mu.Lock()
			cancel()
			p.mu.Unlock()
			return nil, nil
		}
	}
}

// Restore returns a holder to the pool if reusable, or destroys it and
// frees its capacity slot otherwise.
func (p *Pool) Restore(h *ConnHolder, reusable bool) {
	if reusable {
		ctx := context.Background()
		if p.factory.ReadyToRestore(ctx, h) {
			p.mu.Lock()
			p.pushIdleLocked(h)
			p.waiters.notifyOneLocked()
			p.mu.Unlock()
			return
		}
	}

	p.factory.Destroy(h, p.evictCache)
	p.mu.Lock()
	p.created--
	p.waiters.notifyOneLocked()
	p.mu.Unlock()
}

// DrainCreated destroys every idle holder and returns the count
// destroyed. Currently-taken holders are left alone here: they are
// destroyed on their own restore once their stamped version no longer
// matches the factory's current version.
func (p *Pool) DrainCreated() int {
	p.mu.Lock()
	var toDestroy []*ConnHolder
	for e := p.idle.Front(); e != nil; {
		next := e.Next()
		toDestroy = append(toDestroy, e.Value.(*ConnHolder))
		p.idle.Remove(e)
		e = next
	}
	p.mu.Unlock()

	for _, h := range toDestroy {
		p.factory.Destroy(h, p.evictCache)
		p.mu.Lock()
		p.created--
		p.waiters.notifyOneLocked()
		p.mu.Unlock()
	}
	return len(toDestroy)
}

// DestroyIdle destroys up to n idle holders, taken from the back of the
// idle list (the least recently restored in LIFO mode, the most recently
// restored in FIFO mode), for use by the reducer. It never reduces
// created below floor.
func (p *Pool) DestroyIdle(n int, floor int) int {
	p.mu.Lock()
	var toDestroy []*ConnHolder
	for i := 0; i < n; i++ {
		if p.created-len(toDestroy) <= floor {
			break
		}
		back := p.idle.Back()
		if back == nil {
			break
		}
		toDestroy = append(toDestroy, back.Value.(*ConnHolder))
		p.idle.Remove(back)
	}
	p.mu.Unlock()

	for _, h := range toDestroy {
		p.factory.Destroy(h, p.evictCache)
		p.mu.Lock()
		p.created--
		p.waiters.notifyOneLocked()
		p.mu.Unlock()
	}
	return len(toDestroy)
}

// IdleCount reports the number of holders currently idle.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle.Len()
}

// Created reports the number of holders currently created (idle + taken).
func (p *Pool) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Terminate refuses new takes, drains all idle holders, and wakes
// waiters with a terminated result. It is idempotent.
func (p *Pool) Terminate() {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	p.mu.Unlock()

	p.DrainCreated()

	// Wake every remaining waiter so tryTake observes terminated and
	// returns (nil, nil) instead of blocking until ctx expires.
	for {
		p.mu.Lock()
		if p.waiters.fair && p.waiters.tickets.Len() == 0 {
			p.mu.Unlock()
			break
		}
		p.waiters.notifyOneLocked()
		p.mu.Unlock()
		if !p.waiters.fair {
			break
		}
	}
}

// IsTerminated reports whether Terminate has completed.
func (p *Pool) IsTerminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}
