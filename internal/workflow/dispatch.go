package workflow

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Notification is delivered to the listener for every committed transition
// and for every request still awaiting confirmation (Pending).
type Notification struct {
	State    State     `json:"state"`
	Previous State     `json:"previous"`
	Message  string    `json:"message"`
	Pending  bool      `json:"pending"`
	At       time.Time `json:"at"`
}

// Listener receives notifications on a single goroutine, in commit order.
type Listener func(Notification)

// dispatcher is an unbounded FIFO drained by one goroutine, so producers
// never block on a slow listener.
type dispatcher struct {
	logger *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Notification
	listener Listener
	closed   bool
	done     chan struct{}
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	d := &dispatcher{logger: logger, done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) setListener(l Listener) {
	d.mu.Lock()
	d.listener = l
	d.mu.Unlock()
}

func (d *dispatcher) push(n Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, n)
	d.cond.Signal()
}

// close drops queued notifications and stops the consumer. It does not wait,
// so a listener may call Teardown on its own machine.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.listener = nil
	d.queue = nil
	d.mu.Unlock()
	d.cond.Broadcast()
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		n := d.queue[0]
		d.queue[0] = Notification{}
		d.queue = d.queue[1:]
		l := d.listener
		d.mu.Unlock()

		if l != nil {
			d.deliver(l, n)
		}
	}
}

func (d *dispatcher) deliver(l Listener, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in workflow listener", "state", n.State.String(), "panic", fmt.Sprint(r))
		}
	}()
	l(n)
}
