package fixed

import (
	"sync"
	"sync/atomic"

	num "github.com/shabbyrobe/go-num"
)

// Accumulator is the wide energy slot. Pairwise energies summed over a full
// pair list can exceed the narrow int64 range before overflow checking is
// meaningful, so the running total is kept in a 128-bit integer.
type Accumulator struct {
	mu sync.Mutex
	v  num.I128
}

// Add folds one narrow fixed-point increment into the total.
func (a *Accumulator) Add(v int64) {
	a.mu.Lock()
	a.v = a.v.Add(num.I128From64(v))
	a.mu.Unlock()
}

// AddWide folds a partial wide sum into the total. Workers accumulate local
// partials and merge them once; integer addition commutes, so the merge
// order never changes the result.
func (a *Accumulator) AddWide(v num.I128) {
	a.mu.Lock()
	a.v = a.v.Add(v)
	a.mu.Unlock()
}

func (a *Accumulator) Value() num.I128 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}

func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.v = num.I128{}
	a.mu.Unlock()
}

// AtomicAdd accumulates a narrow increment into a shared slice slot. Every
// write to a shared buffer goes through this; a plain read-modify-write
// would race across execution lanes.
func AtomicAdd(buf []int64, idx int, v int64) {
	atomic.AddInt64(&buf[idx], v)
}
