package coordinator

import "go.uber.org/atomic"

// sequenceGuard enforces the single-writer contract on the configuration
// operations: they may be called from any goroutine, but never from two at
// once. Overlapping calls are a programming error, not a runtime condition,
// so the guard panics instead of returning an error.
//
// Unlike a mutex this never blocks; a second caller arriving while the first
// is inside the guarded section means the caller has broken the contract.
type sequenceGuard struct {
	busy atomic.Bool
}

func (g *sequenceGuard) enter(op string) {
	if !g.busy.CompareAndSwap(false, true) {
		panic("coordinator: " + op + " invoked concurrently; configuration calls must be serialized by the caller")
	}
}

func (g *sequenceGuard) exit() {
	g.busy.Store(false)
}
