// Package stmtcache implements the per-connection prepared-statement
// cache: a bounded LRU map from a fingerprint to a cached statement,
// pinned to exactly one raw connection and evicted wholesale when that
// connection is destroyed.
package stmtcache

import (
	"container/list"
	"fmt"
	"sync"
)

// State is the lifecycle state of a cached statement entry.
type State int

const (
	// Available entries may be taken by a subsequent call with the same key.
	Available State = iota
	// InUse entries are currently held by a caller and are never evicted.
	InUse
)

// RawStatement is the minimal contract a cached prepared statement must
// satisfy so the cache can close it on eviction without depending on any
// particular driver's statement type.
type RawStatement interface {
	Close() error
}

// Key fingerprints a cached statement: the raw connection it is pinned
// to, the SQL text, and an invocation signature (e.g. "prepareCall" vs
// "prepareStatement") that keeps distinct call shapes from colliding.
type Key struct {
	ConnID    uint64
	SQL       string
	Signature string
}

func (k Key) String() string {
	return fmt.Sprintf("%d|%s|%s", k.ConnID, k.Signature, k.SQL)
}

type entry struct {
	key     Key
	stmt    RawStatement
	state   State
	element *list.Element
}

// Cache is a bounded LRU cache of prepared statements. A size of 0
// disables caching entirely: TakeOrCreate always calls produce and
// Release is a no-op.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*entry
	lru     *list.List // front = most recently used AVAILABLE entry
}

// New builds a statement cache with the given hard cap on cached
// entries. Per the pool's configuration contract the cap may not exceed
// 2000; callers are expected to enforce that at configuration time.
func New(maxSize int) *Cache {
	return &Cache{
		maxSize: maxSize,
		entries: make(map[string]*entry),
		lru:     list.New(),
	}
}

// TakeOrCreate implements the cache's core contract: an AVAILABLE entry
// under key is atomically flipped to IN_USE and returned; an IN_USE
// entry is bypassed (the caller gets an uncached statement from
// produce, with ok=false so it knows not to return it to the cache); an
// absent key causes produce to run and the result to be inserted as
// IN_USE, evicting AVAILABLE entries by LRU if the cache is at capacity.
func (c *Cache) TakeOrCreate(key Key, produce func() (RawStatement, error)) (stmt RawStatement, cached bool, err error) {
	if c.maxSize == 0 {
		stmt, err = produce()
		return stmt, false, err
	}

	k := key.String()

	c.mu.Lock()
	if e, ok := c.entries[k]; ok {
		if e.state == Available {
			c.lru.Remove(e.element)
			e.element = nil
			e.state = InUse
			c.mu.Unlock()
			return e.stmt, true, nil
		}
		// IN_USE: bypass the cache, return an uncached statement.
		c.mu.Unlock()
		stmt, err = produce()
		return stmt, false, err
	}
	c.mu.Unlock()

	stmt, err = produce()
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have inserted the same key while produce ran
	// outside the lock; the entry already present is kept and this
	// caller's statement is surfaced to it as uncached so it closes normally.
	if _, exists := c.entries[k]; exists {
		return stmt, false, nil
	}

	c.evictForSpaceLocked()
	c.entries[k] = &entry{key: key, stmt: stmt, state: InUse}
	return stmt, true, nil
}

// Release flips an IN_USE entry back to AVAILABLE, making it eligible
// for reuse and for LRU eviction. Releasing a key not present in the
// cache (e.g. because it was evicted, or caching is disabled) is a
// no-op.
func (c *Cache) Release(key Key) {
	if c.maxSize == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok || e.state == Available {
		return
	}
	e.state = Available
	e.element = c.lru.PushFront(e)
}

// Remove evicts a single entry outright and closes its statement,
// regardless of state.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key.String())
}

// EvictConnection drops and closes every entry pinned to connID. Called
// when the owning raw connection is destroyed.
func (c *Cache) EvictConnection(connID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if e.key.ConnID == connID {
			c.removeLocked(k)
		}
	}
}

// Size reports the number of entries currently cached, for metrics and tests.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) removeLocked(k string) {
	e, ok := c.entries[k]
	if !ok {
		return
	}
	delete(c.entries, k)
	if e.element != nil {
		c.lru.Remove(e.element)
	}
	_ = e.stmt.Close()
}

// evictForSpaceLocked evicts the least-recently-used AVAILABLE entry
// until there is room for one more entry. IN_USE entries are never
// evicted; if every entry is IN_USE the cache is allowed to exceed
// maxSize temporarily rather than reject the insert.
func (c *Cache) evictForSpaceLocked() {
	for len(c.entries) >= c.maxSize {
		back := c.lru.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		c.removeLocked(e.key.String())
	}
}
