package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultListenerBuffer holds about 3 seconds of 20ms blocks.
const DefaultListenerBuffer = 150

// Broadcaster fans out PCM blocks from the clock to monitoring outputs and
// the loopback decoder.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	published atomic.Uint64
}

// Listener receives PCM blocks from the broadcaster.
type Listener struct {
	C       chan []int16 // buffered channel of interleaved PCM blocks
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Dropped counts blocks skipped because the listener fell behind.
func (l *Listener) Dropped() uint64 { return l.dropped.Load() }

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a listener with the default buffer.
func (b *Broadcaster) Subscribe() *Listener {
	return b.SubscribeBuffered(DefaultListenerBuffer)
}

// SubscribeBuffered registers a listener that can fall n blocks behind
// before blocks are dropped for it.
func (b *Broadcaster) SubscribeBuffered(n int) *Listener {
	l := &Listener{
		C:    make(chan []int16, max(n, 1)),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Safe to call twice.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	l.once.Do(func() { close(l.done) })
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Published returns how many blocks have been fanned out.
func (b *Broadcaster) Published() uint64 { return b.published.Load() }

// Publish hands frame to every listener without blocking. Slow listeners
// miss the block.
func (b *Broadcaster) Publish(frame []int16) {
	b.mu.RLock()
	for l := range b.listeners {
		select {
		case l.C <- frame:
		default:
			l.dropped.Add(1)
		}
	}
	b.mu.RUnlock()
	b.published.Add(1)
}

// Run reads blocks from source and publishes them until source closes or
// ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.Publish(frame)
		}
	}
}
