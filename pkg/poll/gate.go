package poll

import "sync/atomic"

// Gate is a non-reentrant, non-blocking mutual exclusion flag.
// The zero value is free.
type Gate struct {
	held atomic.Bool
}

// TryAcquire takes the gate. It returns false immediately if the gate is held.
func (g *Gate) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release frees the gate. Releasing a free gate is a no-op.
func (g *Gate) Release() {
	g.held.Store(false)
}

// Held reports whether the gate is currently held.
func (g *Gate) Held() bool {
	return g.held.Load()
}
