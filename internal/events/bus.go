package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/beyproweb/beypro-notify/internal/logging"
)

const defaultBufferSize = 64

// Handler processes a single signal. Handlers run on the bus dispatch
// goroutine and must not block.
type Handler func(Signal)

type subscriber struct {
	name    string
	handler Handler
}

// Bus is an asynchronous broadcast bus with non-blocking publish.
// Signals are delivered to all subscribers in registration order on a
// single dispatch goroutine, so per-subscriber ordering is preserved.
type Bus struct {
	signalChan chan Signal

	mu          sync.RWMutex
	subscribers []subscriber

	wg      sync.WaitGroup
	done    chan struct{}
	stopped atomic.Bool

	dropped atomic.Uint64

	logger *slog.Logger
}

// NewBus creates and starts a broadcast bus.
func NewBus() *Bus {
	b := &Bus{
		signalChan: make(chan Signal, defaultBufferSize),
		done:       make(chan struct{}),
		logger:     logging.ForService("events"),
	}
	b.wg.Add(1)
	go b.dispatchLoop()
	return b
}

// Subscribe registers a named handler for all signals. The name is only
// used for logging.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, subscriber{name: name, handler: handler})
	b.logger.Debug("subscriber registered", "name", name, "total", len(b.subscribers))
}

// Publish enqueues a signal without blocking. When the buffer is full the
// signal is dropped and counted; a lost local broadcast only delays a
// refresh until the next trigger.
func (b *Bus) Publish(sig Signal) {
	if b.stopped.Load() {
		return
	}
	select {
	case b.signalChan <- sig:
	default:
		b.dropped.Add(1)
		b.logger.Warn("signal dropped, bus buffer full",
			"kind", sig.Kind,
			"dropped_total", b.dropped.Load())
	}
}

// Dropped returns the number of signals dropped due to a full buffer.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Stop shuts the bus down and waits for the dispatch goroutine to exit.
// Signals still buffered are discarded.
func (b *Bus) Stop() {
	if !b.stopped.CompareAndSwap(false, true) {
		return
	}
	close(b.done)
	b.wg.Wait()
}

func (b *Bus) dispatchLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case sig := <-b.signalChan:
			b.deliver(sig)
		}
	}
}

func (b *Bus) deliver(sig Signal) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(sig)
	}
}
