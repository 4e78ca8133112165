package xsync

import (
	"sync"

	"github.com/pkg/errors"
)

// DynamicWaitGroup tracks a count of outstanding work items, like
// sync.WaitGroup, except the count may be mutated concurrently with a Wait
// call in progress -- exactly the executor's shape: Execute calls Add for
// every root node enqueued, dispatched nodes call Add for newly-ready
// dependents before they call Done for themselves, and Execute's caller
// blocks in Wait until the last in-flight node finishes.
type DynamicWaitGroup struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int64
}

// NewDynamicWaitGroup creates a new DynamicWaitGroup with a zero count.
func NewDynamicWaitGroup() *DynamicWaitGroup {
	wg := &DynamicWaitGroup{}
	wg.cond = sync.NewCond(&wg.mu)
	return wg
}

// Add changes the counter by delta. A transition to zero wakes every
// waiter; a negative counter panics.
func (wg *DynamicWaitGroup) Add(delta int) {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	wg.count += int64(delta)
	if wg.count < 0 {
		panic(errors.Errorf("DynamicWaitGroup: negative counter"))
	}
	if wg.count == 0 {
		wg.cond.Broadcast()
	}
}

// Done decrements the counter by one.
func (wg *DynamicWaitGroup) Done() {
	wg.Add(-1)
}

// Wait blocks until the counter reaches zero. Safe to call concurrently
// with Add -- a waiter that wakes on a zero count re-enters only if a
// concurrent Add raised the count again before it acquired the lock.
func (wg *DynamicWaitGroup) Wait() {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	for wg.count > 0 {
		wg.cond.Wait()
	}
}
