// Package dispatch decodes inbound frames into typed events and delivers
// them to listeners on a single goroutine.
package dispatch

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/luciancaetano/luster"
	"github.com/luciancaetano/luster/internal/metrics"
)

// Applier applies an event to the cache before listeners see it.
type Applier interface {
	Apply(ev luster.Event) error
}

// Config configures a Dispatcher.
type Config struct {
	// Applier is the cache synchronizer. Nil skips cache sync.
	Applier Applier
	// Sink receives listener failures and cache sync errors. Nil logs
	// with slog.Default.
	Sink    *Sink
	Metrics *metrics.Metrics
}

// Dispatcher delivers events in arrival order. For each event the applier
// runs first, then every listener registered for the event's kind in
// registration order, then every KindAny listener. The next event starts
// only once all of them returned.
//
// The queue is unbounded: Push never blocks, so a slow listener delays
// dispatch but never the socket read loop.
type Dispatcher struct {
	applier Applier
	sink    *Sink
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	qmu    sync.Mutex
	queue  []luster.Event
	notify chan struct{}

	lmu       sync.RWMutex
	listeners map[luster.EventKind][]*Registration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a dispatcher and starts its goroutine.
func New(cfg Config) *Dispatcher {
	sink := cfg.Sink
	if sink == nil {
		sink = &Sink{Metrics: cfg.Metrics}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		applier:   cfg.Applier,
		sink:      sink,
		metrics:   cfg.Metrics,
		ctx:       ctx,
		cancel:    cancel,
		notify:    make(chan struct{}, 1),
		listeners: make(map[luster.EventKind][]*Registration),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go d.run()

	return d
}

// Push enqueues events for dispatch. It returns luster.ErrClosed once Halt
// or Stop has been called.
func (d *Dispatcher) Push(events ...luster.Event) error {
	if len(events) == 0 {
		return nil
	}

	d.qmu.Lock()
	if d.halted() {
		d.qmu.Unlock()
		return luster.ErrClosed
	}
	d.queue = append(d.queue, events...)
	depth := len(d.queue)
	d.qmu.Unlock()
	d.metrics.SetQueueDepth(depth)

	select {
	case d.notify <- struct{}{}:
	default:
	}
	return nil
}

// Emit enqueues an application-built event on the same ordered path as
// events from the socket. Custom kinds are delivered exactly like built-in
// ones.
func (d *Dispatcher) Emit(ev luster.Event) error {
	if ev == nil {
		return fmt.Errorf("dispatch: emit nil event")
	}
	switch ev.Kind() {
	case "":
		return fmt.Errorf("dispatch: emit event with empty kind")
	case luster.KindAny:
		return fmt.Errorf("dispatch: %q is reserved for wildcard listeners", luster.KindAny)
	}
	return d.Push(ev)
}

// Halt stops dispatching without waiting. The event in flight, if any,
// finishes; no queued event starts after Halt returns.
func (d *Dispatcher) Halt() {
	d.stopOnce.Do(func() {
		d.qmu.Lock()
		close(d.stop)
		d.queue = nil
		d.qmu.Unlock()
	})
	d.metrics.SetQueueDepth(0)
}

// Stop halts dispatching and waits for the dispatch goroutine until ctx is
// done, at which point the context passed to listeners is cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.Halt()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		ev, ok := d.pop()
		if !ok {
			select {
			case <-d.notify:
				continue
			case <-d.stop:
				return
			}
		}

		d.dispatch(ev)
	}
}

func (d *Dispatcher) pop() (luster.Event, bool) {
	d.qmu.Lock()
	defer d.qmu.Unlock()

	if d.halted() || len(d.queue) == 0 {
		return nil, false
	}
	ev := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.metrics.SetQueueDepth(len(d.queue))
	return ev, true
}

// halted must be called with qmu held.
func (d *Dispatcher) halted() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) dispatch(ev luster.Event) {
	kind := ev.Kind()

	if d.applier != nil {
		if err := d.applier.Apply(ev); err != nil {
			d.sink.Report(err)
		}
	}
	d.metrics.EventDispatched(kind)

	for _, reg := range d.snapshot(kind) {
		d.invoke(reg, ev)
	}
	if kind != luster.KindAny {
		for _, reg := range d.snapshot(luster.KindAny) {
			d.invoke(reg, ev)
		}
	}
}

func (d *Dispatcher) invoke(reg *Registration, ev luster.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.sink.Report(&luster.ListenerError{
				Kind:         ev.Kind(),
				Registration: reg.id,
				Err:          fmt.Errorf("panic: %v", r),
			})
		}
	}()

	if err := reg.listener(d.ctx, ev); err != nil {
		d.sink.Report(&luster.ListenerError{Kind: ev.Kind(), Registration: reg.id, Err: err})
	}
}

// Registration identifies one registered listener.
type Registration struct {
	id       string
	kind     luster.EventKind
	listener luster.Listener
	owner    *Dispatcher
}

// ID returns the registration's unique identifier.
func (r *Registration) ID() string { return r.id }

// Kind returns the event kind the listener was registered for.
func (r *Registration) Kind() luster.EventKind { return r.kind }

// Remove unregisters the listener. It reports whether the listener was
// still registered. A listener removed during dispatch may still receive
// the event in flight.
func (r *Registration) Remove() bool {
	d := r.owner
	d.lmu.Lock()
	defer d.lmu.Unlock()

	regs := d.listeners[r.kind]
	i := slices.Index(regs, r)
	if i < 0 {
		return false
	}
	regs = slices.Delete(slices.Clone(regs), i, i+1)
	if len(regs) == 0 {
		delete(d.listeners, r.kind)
	} else {
		d.listeners[r.kind] = regs
	}
	return true
}

// On registers listener for kind. Use luster.KindAny to receive every
// event.
func (d *Dispatcher) On(kind luster.EventKind, listener luster.Listener) *Registration {
	reg := &Registration{
		id:       uuid.New().String(),
		kind:     kind,
		listener: listener,
		owner:    d,
	}

	d.lmu.Lock()
	d.listeners[kind] = append(d.listeners[kind], reg)
	d.lmu.Unlock()

	return reg
}

// Listeners returns the registrations for kind in registration order.
func (d *Dispatcher) Listeners(kind luster.EventKind) []*Registration {
	return d.snapshot(kind)
}

// Clear removes every listener for kind and returns how many there were.
func (d *Dispatcher) Clear(kind luster.EventKind) int {
	d.lmu.Lock()
	defer d.lmu.Unlock()

	n := len(d.listeners[kind])
	delete(d.listeners, kind)
	return n
}

// Kinds returns every kind that has at least one listener, sorted.
func (d *Dispatcher) Kinds() []luster.EventKind {
	d.lmu.RLock()
	defer d.lmu.RUnlock()

	kinds := make([]luster.EventKind, 0, len(d.listeners))
	for kind := range d.listeners {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

// snapshot copies the registrations so listeners may register or remove
// listeners while being invoked.
func (d *Dispatcher) snapshot(kind luster.EventKind) []*Registration {
	d.lmu.RLock()
	defer d.lmu.RUnlock()
	return slices.Clone(d.listeners[kind])
}
