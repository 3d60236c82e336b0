package midi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"midiseq/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Sender writes one message to an open port.
type Sender func(msg gomidi.Message) error

// Opener opens the named output port.
type Opener func(name string) (Sender, error)

// OpenPort opens a system output port by name through the registered gomidi
// driver.
func OpenPort(name string) (Sender, error) {
	out, err := gomidi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("find output %q: %w", name, err)
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", name, err)
	}
	return Sender(send), nil
}

// ListOutPorts returns the names of the system output ports. Some drivers
// hang while enumerating, so the call gives up after timeout.
func ListOutPorts(timeout time.Duration) ([]string, error) {
	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- gomidi.GetOutPorts()
	}()

	select {
	case outs := <-ch:
		names := make([]string, len(outs))
		for i, out := range outs {
			names[i] = out.String()
		}
		return names, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("listing output ports timed out after %s", timeout)
	}
}

// Router drains an Outbox and writes each dispatch to its port. Ports are
// configured by name; a PortID is the index into that list. Senders are
// opened lazily and cached.
type Router struct {
	ports []string
	open  Opener

	senders   map[PortID]Sender
	sendersMu sync.RWMutex

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewRouter creates a router for the given port names. A nil opener uses
// OpenPort.
func NewRouter(ports []string, open Opener) *Router {
	if open == nil {
		open = OpenPort
	}
	return &Router{
		ports:   ports,
		open:    open,
		senders: make(map[PortID]Sender),
	}
}

// Run delivers dispatches until ctx is cancelled. Whatever is queued at
// cancellation is still delivered before returning.
func (r *Router) Run(ctx context.Context, box *Outbox) error {
	for {
		select {
		case <-ctx.Done():
			r.Flush(box)
			return ctx.Err()
		case <-box.Ready():
			r.Flush(box)
		}
	}
}

// Flush delivers whatever is queued in box right now.
func (r *Router) Flush(box *Outbox) {
	r.deliverAll(box.Drain())
}

// failureLogEvery rate-limits the delivery failure summary
const failureLogEvery = 100

func (r *Router) deliverAll(ds []Dispatch) {
	for _, d := range ds {
		if err := r.Deliver(d); err != nil {
			// A vanished port fails every message; keep the log readable.
			debug.Verbose("router", "tick=%d port=%d %s: %v", d.Tick, d.Port, d.Message, err)
			debug.LogEvery(failureLogEvery, "router", "delivery failing: %v", err)
		}
	}
}

// Deliver writes d to its port. Failures wrap ErrOutputUnavailable and
// drop the cached sender so the port is reopened on the next attempt.
func (r *Router) Deliver(d Dispatch) error {
	send, err := r.sender(d.Port)
	if err != nil {
		r.failed.Add(1)
		return err
	}
	if err := send(gomidi.Message(d.Bytes[:])); err != nil {
		r.failed.Add(1)
		r.forget(d.Port)
		return fmt.Errorf("%w: port %d: %v", ErrOutputUnavailable, d.Port, err)
	}
	r.sent.Add(1)
	debug.Verbose("dispatch", "tick=%d port=%d ch=%d %s", d.Tick, d.Port, d.Channel, gomidi.Message(d.Bytes[:]))
	return nil
}

// Stats returns the number of delivered and failed dispatches.
func (r *Router) Stats() (sent, failed uint64) {
	return r.sent.Load(), r.failed.Load()
}

// sender returns the sender for port, lazily opening it.
func (r *Router) sender(port PortID) (Sender, error) {
	if port < 0 || int(port) >= len(r.ports) {
		return nil, fmt.Errorf("%w: no port configured at %d", ErrOutputUnavailable, port)
	}

	r.sendersMu.RLock()
	if send, ok := r.senders[port]; ok {
		r.sendersMu.RUnlock()
		return send, nil
	}
	r.sendersMu.RUnlock()

	r.sendersMu.Lock()
	defer r.sendersMu.Unlock()

	// Double-check after acquiring write lock
	if send, ok := r.senders[port]; ok {
		return send, nil
	}

	send, err := r.open(r.ports[port])
	if err != nil {
		return nil, errors.Join(ErrOutputUnavailable, err)
	}
	r.senders[port] = send
	debug.Log("router", "opened port %d (%s)", port, r.ports[port])
	return send, nil
}

func (r *Router) forget(port PortID) {
	r.sendersMu.Lock()
	delete(r.senders, port)
	r.sendersMu.Unlock()
}
