package ltc

import (
	"sync"
	"sync/atomic"
)

// Guard protects the encoder's engine and buffer pair. The audio thread only
// ever calls TryAcquire and must have a fallback when it fails; the control
// thread may block in Acquire.
type Guard struct {
	mu        sync.Mutex
	contended atomic.Uint64
}

// TryAcquire takes the guard without blocking and reports whether it did.
func (g *Guard) TryAcquire() bool {
	if g.mu.TryLock() {
		return true
	}
	g.contended.Add(1)
	return false
}

// Acquire blocks until the guard is held. Never call it on the audio thread.
func (g *Guard) Acquire() { g.mu.Lock() }

func (g *Guard) Release() { g.mu.Unlock() }

// Contended returns how many TryAcquire calls failed.
func (g *Guard) Contended() uint64 { return g.contended.Load() }
