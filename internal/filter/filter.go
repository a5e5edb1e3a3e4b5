// Package filter holds the active date range. Changing it never fetches.
package filter

import (
	"sync"

	"ledgerlite/internal/core"
)

type Filter struct {
	mu  sync.RWMutex
	rng core.DateRange
}

func New() *Filter {
	return &Filter{}
}

// Set replaces the range. Bounds are not checked against each other.
func (f *Filter) Set(r core.DateRange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rng = r
}

// Clear resets both bounds to absent.
func (f *Filter) Clear() {
	f.Set(core.DateRange{})
}

func (f *Filter) Get() core.DateRange {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rng
}
