package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DispatcherConfig controls dispatcher buffering behavior.
type DispatcherConfig struct {
	BufferSize int
	// DropIfFull drops immediately when the buffer is full. Otherwise Emit
	// waits up to EnqueueTimeout before dropping.
	DropIfFull     bool
	EnqueueTimeout time.Duration
	// WriteTimeout bounds each sink write.
	WriteTimeout time.Duration
}

// Dispatcher asynchronously forwards audit events to a sink from a single
// goroutine, so the chain seals events in delivery order.
type Dispatcher struct {
	cfg       DispatcherConfig
	sink      Sink
	chain     *Chain
	onError   func(Event, error)
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the delivery goroutine. onError may be nil.
func NewDispatcher(cfg DispatcherConfig, sink Sink, chain *Chain, onError func(Event, error)) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if onError == nil {
		onError = func(Event, error) {}
	}

	d := &Dispatcher{
		cfg:     cfg,
		sink:    sink,
		chain:   chain,
		onError: onError,
		ch:      make(chan Event, cfg.BufferSize),
		done:    make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	deliver(context.Background(), d.sink, d.chain, d.cfg.WriteTimeout, event, d.onError)
}

// Emit enqueues event. It reports false when the event was dropped.
func (d *Dispatcher) Emit(event Event) bool {
	if d == nil || d.closed.Load() {
		return false
	}

	select {
	case d.ch <- event:
		return true
	default:
	}

	if d.cfg.DropIfFull || d.cfg.EnqueueTimeout <= 0 {
		d.dropped.Add(1)
		return false
	}

	timer := time.NewTimer(d.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case d.ch <- event:
		return true
	case <-timer.C:
	case <-d.done:
	}
	d.dropped.Add(1)
	return false
}

// Close stops accepting events and drains the buffer.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of events discarded due to backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// deliver seals and writes one event, bounding the sink call by timeout.
// Panics from the sink are reported as errors.
func deliver(ctx context.Context, sink Sink, chain *Chain, timeout time.Duration, event Event, onError func(Event, error)) {
	defer func() {
		if r := recover(); r != nil {
			onError(event, panicError(r))
		}
	}()

	if err := chain.Seal(&event); err != nil {
		onError(event, err)
		return
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := sink.Write(ctx, event); err != nil {
		onError(event, err)
	}
}
