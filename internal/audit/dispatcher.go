package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Sink receives batches of events from a Dispatcher. Batches may mix
// streams.
type Sink interface {
	EmitBatch(ctx context.Context, events []Event)
}

// DispatcherConfig sizes the in-process queue in front of Redis.
type DispatcherConfig struct {
	BufferSize int
	// MaxBatch caps how many queued events are handed to the sink at once.
	MaxBatch   int
	DropIfFull bool
}

// Dispatcher hands queued events to a sink from one background goroutine,
// coalescing whatever is already waiting into a single batch.
type Dispatcher struct {
	sink     Sink
	queue    chan Event
	maxBatch int
	block    bool

	// Emit holds mu shared while sending; Close holds it to set closed.
	mu      sync.RWMutex
	closed  bool
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once

	dropped atomic.Uint64
}

func NewDispatcher(cfg DispatcherConfig, sink Sink) *Dispatcher {
	size := cfg.BufferSize
	if size < 1 {
		size = 1
	}
	batch := cfg.MaxBatch
	if batch < 1 {
		batch = 64
	}
	d := &Dispatcher{
		sink:     sink,
		queue:    make(chan Event, size),
		maxBatch: batch,
		block:    !cfg.DropIfFull,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.stopped)
	batch := make([]Event, 0, d.maxBatch)
	for {
		select {
		case ev := <-d.queue:
			batch = d.collect(append(batch[:0], ev))
			d.sink.EmitBatch(context.Background(), batch)
		case <-d.stop:
			for len(d.queue) > 0 {
				batch = d.collect(batch[:0])
				d.sink.EmitBatch(context.Background(), batch)
			}
			return
		}
	}
}

// collect tops batch up with events that are already queued.
func (d *Dispatcher) collect(batch []Event) []Event {
	for len(batch) < d.maxBatch {
		select {
		case ev := <-d.queue:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

// Emit queues event. A full queue either drops and counts the event or
// waits until space frees up or ctx ends.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	if !d.block {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	}
}

// Close rejects further events and returns once everything queued has
// reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.stop)
		d.mu.Unlock()
	})
	<-d.stopped
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
