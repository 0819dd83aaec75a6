package orchestrator

import "sync"

// UploadAggregator fans the single batch percentage reported by the
// transport out to every item of the batch. All items get the same value on
// each tick; values never decrease within one batch.
type UploadAggregator struct {
	mu      sync.Mutex
	n       int
	items   map[int]int
	pending bool
}

// NewUploadAggregator returns an idle aggregator.
func NewUploadAggregator() *UploadAggregator {
	return &UploadAggregator{items: make(map[int]int)}
}

// Begin starts a batch of n items with an empty mapping.
func (a *UploadAggregator) Begin(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n = n
	a.items = make(map[int]int, n)
	a.pending = true
}

// Update applies a batch percentage, clamped to 0..100, and returns the new
// mapping.
func (a *UploadAggregator) Update(percent int) map[int]int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < a.n; i++ {
		if cur, ok := a.items[i]; !ok || percent > cur {
			a.items[i] = percent
		}
	}
	return a.snapshotLocked()
}

// remove drops item index from a pending batch and resets the mapping to
// empty. It is a no-op once the batch has finished.
func (a *UploadAggregator) remove(index int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.pending || index < 0 || index >= a.n {
		return
	}
	a.n--
	a.items = make(map[int]int, a.n)
}

// Finish marks the batch complete. The mapping is kept for display.
func (a *UploadAggregator) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = false
}

// Pending reports whether a batch is in progress.
func (a *UploadAggregator) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Snapshot returns a copy of the current mapping.
func (a *UploadAggregator) Snapshot() map[int]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Reset returns the aggregator to idle.
func (a *UploadAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n = 0
	a.items = make(map[int]int)
	a.pending = false
}

func (a *UploadAggregator) snapshotLocked() map[int]int {
	out := make(map[int]int, len(a.items))
	for k, v := range a.items {
		out[k] = v
	}
	return out
}
