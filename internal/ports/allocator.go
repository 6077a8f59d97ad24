// Package ports implements the Port Allocator (D): a free-list over one
// inclusive integer range, seeded from persisted and live engine state so a
// restart never double-allocates a host port. Grounded on the teacher's
// mutex-protected in-memory bookkeeping style (internal/storage/memory.go),
// generalized from a map-of-rows guard to a dedicated range allocator
// per spec.md §4.1/§9 ("D holds its own [lock]").
package ports

import (
	"sync"

	"github.com/forgehook/forgehostd/internal/forgehosterr"
)

// Allocator hands out unique host ports from [Start, End] inclusive.
type Allocator struct {
	mu    sync.Mutex
	start int
	end   int
	inUse map[int]bool
}

// NewAllocator creates an allocator over the inclusive range [start, end],
// pre-marking the given ports (typically store.UsedPorts() unioned with
// whatever the container engine reports as currently bound) as already
// leased.
func NewAllocator(start, end int, seed []int) *Allocator {
	a := &Allocator{start: start, end: end, inUse: make(map[int]bool, len(seed))}
	for _, p := range seed {
		if p >= start && p <= end {
			a.inUse[p] = true
		}
	}
	return a
}

// Allocate reserves and returns the lowest free port in range. Range
// exhaustion is reported as forgehosterr.CodeConflict per spec.md §9's
// "overflow raises conflict".
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for p := a.start; p <= a.end; p++ {
		if !a.inUse[p] {
			a.inUse[p] = true
			return p, nil
		}
	}
	return 0, forgehosterr.New(forgehosterr.CodeConflict, "port range exhausted")
}

// Reserve marks a specific port as leased (used when adopting an orphaned
// container whose bound host port must not be reissued).
func (a *Allocator) Reserve(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inUse[port] = true
}

// Release frees a port for reuse, e.g. after a failed install or a
// successful uninstall.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, port)
}

// InUse reports how many ports in the range are currently leased.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse)
}
