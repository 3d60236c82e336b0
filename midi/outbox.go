package midi

import (
	"errors"
	"sync"
)

// ErrOutputUnavailable is returned when a dispatch cannot be accepted or
// written to its port.
var ErrOutputUnavailable = errors.New("output unavailable")

// Output accepts dispatches from the sequencer. Send must not block.
type Output interface {
	Send(d Dispatch) error
}

// Outbox is an unbounded FIFO between the sequencer and the port router.
// Send never blocks; the consumer waits on Ready and takes everything
// queued with Drain.
type Outbox struct {
	mu     sync.Mutex
	queue  []Dispatch
	closed bool
	ready  chan struct{} // capacity 1, signalled on every Send
}

func NewOutbox() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1)}
}

// Send queues d. It fails only after Close.
func (o *Outbox) Send(d Dispatch) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOutputUnavailable
	}
	o.queue = append(o.queue, d)
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return nil
}

// Ready fires when at least one dispatch may be waiting.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

// Drain removes and returns all queued dispatches in send order.
func (o *Outbox) Drain() []Dispatch {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.queue
	o.queue = nil
	return out
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Close rejects further sends. Queued dispatches can still be drained.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}
