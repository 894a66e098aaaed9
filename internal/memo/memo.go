// Package memo provides a concurrency-safe get-or-insert map of futures.
//
// The first caller for a key runs the computation and every caller waiting on
// it observes the same value and error. Successful results are kept for the
// lifetime of the Group, which is how the builder, the resolver chain and the
// caches give each key exactly one computation per process. Failures reach
// the callers already waiting and are then forgotten, so the next caller for
// that key starts a fresh attempt.
package memo

import (
	"fmt"
	"sync"
)

// Group memoizes one computation per key.
//
// The zero value is ready to use. A Group must not be copied after first use.
type Group[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]
}

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Do returns the memoized result for key, running fn if no computation for
// key has started yet or the last one failed. Concurrent callers for the same
// key block until the single in-flight computation finishes.
//
// A panic in fn is recovered and reported as an error to every waiter so
// that none of them blocks forever.
func (g *Group[K, V]) Do(key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call[V])
	}
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		<-c.done
		return c.val, c.err
	}
	c := &call[V]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				c.err = fmt.Errorf("memo: computation for %v panicked: %v", key, r)
			}
		}()
		c.val, c.err = fn()
	}()
	close(c.done)

	if c.err != nil {
		g.mu.Lock()
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
	}

	return c.val, c.err
}

// Peek returns the result for key if its computation has finished
// successfully. It never blocks and never starts a computation.
func (g *Group[K, V]) Peek(key K) (V, bool) {
	g.mu.Lock()
	c, ok := g.calls[key]
	g.mu.Unlock()

	var zero V
	if !ok {
		return zero, false
	}
	select {
	case <-c.done:
		if c.err != nil {
			return zero, false
		}
		return c.val, true
	default:
		return zero, false
	}
}

// Len returns the number of keys that are in flight or have succeeded.
func (g *Group[K, V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Range calls fn for every finished, successful entry. Iteration order is
// unspecified. fn must not call back into the Group.
func (g *Group[K, V]) Range(fn func(key K, val V) bool) {
	g.mu.Lock()
	snapshot := make(map[K]*call[V], len(g.calls))
	for k, c := range g.calls {
		snapshot[k] = c
	}
	g.mu.Unlock()

	for k, c := range snapshot {
		select {
		case <-c.done:
			if c.err == nil && !fn(k, c.val) {
				return
			}
		default:
		}
	}
}
