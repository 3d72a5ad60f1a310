// Package pathcache memoizes path-query results per ordered (source, target)
// pair with an at-most-one-inflight discipline: concurrent queries for the
// same key share a single BFS execution.
package pathcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wikiwalk/wikiwalk/internal/graph"
	"github.com/wikiwalk/wikiwalk/internal/metrics"
)

// DefaultSize bounds the number of completed results held by the LRU.
const DefaultSize = 1024

// Key is the ordered query pair; (a,b) and (b,a) are distinct entries.
type Key struct {
	Source uint32
	Target uint32
}

// ComputeFunc runs the underlying search for one key.
type ComputeFunc func(ctx context.Context, key Key) (*graph.Result, error)

type entry struct {
	res *graph.Result
	err error
}

// pending is the one-shot broadcast cell for an in-flight computation.
// Waiters block on done; abandoned marks a leader that was cancelled, in
// which case waiters retry (and one of them re-leads).
type pending struct {
	done      chan struct{}
	res       *graph.Result
	err       error
	abandoned bool
}

// Cache is safe for concurrent use. Completed results (including NoPath and
// NoSuchVertex, which are worth remembering for pathological query streams)
// live in an LRU; timeouts and cancellations are never cached.
type Cache struct {
	compute ComputeFunc

	mu       sync.Mutex
	results  *lru.Cache[Key, entry]
	inflight map[Key]*pending

	// computations counts actual BFS executions, observable by tests of the
	// at-most-one-inflight contract.
	computations atomic.Uint64
}

// New builds a cache of the given capacity (DefaultSize if <= 0).
func New(size int, compute ComputeFunc) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	results, err := lru.New[Key, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{
		compute:  compute,
		results:  results,
		inflight: make(map[Key]*pending),
	}, nil
}

// Computations reports how many times the compute function has run.
func (c *Cache) Computations() uint64 { return c.computations.Load() }

// Get returns the cached result for key, joining an in-flight computation if
// one exists and leading a new one otherwise. A caller waiting on another
// caller's computation returns graph.ErrCancelled as soon as its own context
// ends, without disturbing other waiters; a leading caller returns what the
// compute function reports for its context.
func (c *Cache) Get(ctx context.Context, key Key) (*graph.Result, error) {
	for {
		c.mu.Lock()
		if e, ok := c.results.Get(key); ok {
			c.mu.Unlock()
			metrics.CacheHits.Inc()
			return e.res, e.err
		}
		if p, ok := c.inflight[key]; ok {
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, graph.ErrCancelled
			case <-p.done:
			}
			if p.abandoned {
				// the leader was cancelled; race to re-lead
				continue
			}
			return p.res, p.err
		}

		p := &pending{done: make(chan struct{})}
		c.inflight[key] = p
		c.mu.Unlock()

		res, err := c.compute(ctx, key)
		c.computations.Add(1)

		c.mu.Lock()
		delete(c.inflight, key)
		switch {
		case errors.Is(err, graph.ErrCancelled):
			p.abandoned = true
		case errors.Is(err, graph.ErrTimeout):
			p.res, p.err = nil, err
		default:
			p.res, p.err = res, err
			c.results.Add(key, entry{res: res, err: err})
		}
		close(p.done)
		c.mu.Unlock()

		if p.abandoned {
			return nil, graph.ErrCancelled
		}
		return p.res, p.err
	}
}

// Len reports the number of completed entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results.Len()
}
