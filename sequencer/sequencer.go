package sequencer

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"midiseq/debug"
	"midiseq/midi"
)

// Command drives the transport.
type Command int

const (
	Play Command = iota
	Stop
	Pause
	Reset
)

func (c Command) String() string {
	switch c {
	case Play:
		return "play"
	case Stop:
		return "stop"
	case Pause:
		return "pause"
	case Reset:
		return "reset"
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// ParseCommand is the inverse of Command.String.
func ParseCommand(s string) (Command, error) {
	for _, c := range []Command{Play, Stop, Pause, Reset} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q: %w", s, ErrInvalidParameter)
}

// commandQueue is the capacity of the command channel
const commandQueue = 64

// idleInterval is how often the loop wakes while the transport is halted
const idleInterval = 50 * time.Millisecond

// Sequencer owns playback. Run services transport commands and the tick
// clock from one goroutine; each tick it snapshots the events due at the
// playhead, sends them to the output outside the storage lock, then
// advances the playhead.
type Sequencer struct {
	storage  *Storage
	out      midi.Output
	commands chan Command

	dispatched atomic.Uint64
	dropped    atomic.Uint64

	// sounding notes, owned by the Run goroutine
	held map[heldNote]struct{}

	// Notify UI of transport updates
	UpdateChan chan struct{}
}

// New creates a sequencer reading storage and writing to out.
func New(storage *Storage, out midi.Output) *Sequencer {
	return &Sequencer{
		storage:    storage,
		out:        out,
		commands:   make(chan Command, commandQueue),
		held:       make(map[heldNote]struct{}),
		UpdateChan: make(chan struct{}, 1),
	}
}

// Commands is the transport queue. Any number of goroutines may send.
// Effects are observed through Storage.Transport.
func (s *Sequencer) Commands() chan<- Command {
	return s.commands
}

// Send queues cmd, blocking only while the queue is full.
func (s *Sequencer) Send(cmd Command) {
	s.commands <- cmd
}

// Dispatched counts messages accepted by the output.
func (s *Sequencer) Dispatched() uint64 {
	return s.dispatched.Load()
}

// Dropped counts messages the output refused.
func (s *Sequencer) Dropped() uint64 {
	return s.dropped.Load()
}

// Run blocks until ctx is cancelled. Whichever of a command or the tick
// timer is ready is handled first; a tick in progress always completes.
// Keys still sounding at cancellation get a note-off before Run returns.
func (s *Sequencer) Run(ctx context.Context) error {
	timer := time.NewTimer(s.interval())
	defer timer.Stop()

	debug.Log("sequencer", "loop started")
	for {
		select {
		case <-ctx.Done():
			pos, _ := s.storage.playhead()
			s.release(pos)
			debug.Log("sequencer", "loop stopped: %v", ctx.Err())
			return ctx.Err()
		case cmd := <-s.commands:
			wasRunning := s.storage.Transport().State == Running
			s.apply(cmd)
			if !wasRunning && s.storage.Transport().State == Running {
				// Start ticking now rather than after the idle wait.
				timer.Reset(s.interval())
			}
		case <-timer.C:
			s.step()
			timer.Reset(s.interval())
		}
	}
}

// interval derives the tick length from the current tempo so tempo edits
// apply from the next tick boundary.
func (s *Sequencer) interval() time.Duration {
	s.storage.mu.RLock()
	bpm, ppqn, state := s.storage.tempo, s.storage.ppqn, s.storage.transport.State
	s.storage.mu.RUnlock()
	if state != Running {
		return idleInterval
	}
	return TickDuration(bpm, ppqn)
}

// apply runs one transport transition.
//
//	Stopped/Paused + Play  -> Running
//	Running        + Stop  -> Stopped (position kept)
//	Paused         + Stop  -> Stopped (position kept)
//	Running        + Pause -> Paused  (position kept)
//	any            + Reset -> Stopped at zero
//
// Anything else is a no-op. Leaving Running silences every port in use.
func (s *Sequencer) apply(cmd Command) {
	prev := s.storage.Transport()
	next := prev

	switch cmd {
	case Play:
		if prev.State == Running {
			return
		}
		next.State = Running
	case Stop:
		if prev.State == Stopped {
			return
		}
		next.State = Stopped
	case Pause:
		if prev.State != Running {
			return
		}
		next.State = Paused
	case Reset:
		next = Transport{State: Stopped, Position: Zero()}
	default:
		debug.Warn("transport", "ignoring %s", cmd)
		return
	}

	s.storage.setTransport(next)
	debug.Log("transport", "%s: %s -> %s at %d", cmd, prev.State, next.State, next.Position)

	if prev.State == Running && next.State != Running {
		s.silence(prev.Position)
	}
	s.notifyUpdate()
}

// step performs one tick: dispatch everything due at the playhead, then
// advance it.
func (s *Sequencer) step() {
	pos, running := s.storage.playhead()
	if !running {
		return
	}

	for _, d := range s.storage.EventsDue(pos) {
		if !d.Audible() {
			continue
		}
		s.send(midi.NewDispatch(uint64(d.Tick), d.Instrument.Port, d.Instrument.Channel, d.Entry.Message))
	}

	if err := s.storage.advance(pos); err != nil {
		debug.Warn("transport", "%v; stopping", err)
		s.storage.setTransport(Transport{State: Stopped, Position: pos})
		s.silence(pos)
	}
	s.notifyUpdate()
}

// send forwards one dispatch. A refused message is logged and counted;
// playback carries on.
func (s *Sequencer) send(d midi.Dispatch) {
	if err := s.out.Send(d); err != nil {
		s.dropped.Add(1)
		debug.Warn("dispatch", "dropped tick=%d port=%d ch=%d %s: %v", d.Tick, d.Port, d.Channel, d.Message, err)
		return
	}
	s.dispatched.Add(1)
	s.track(d)
}

// heldNote is a key left sounding by a note-on.
type heldNote struct {
	port midi.PortID
	ch   midi.Channel
	key  uint8
}

func compareHeld(a, b heldNote) int {
	if c := cmp.Compare(a.port, b.port); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ch, b.ch); c != 0 {
		return c
	}
	return cmp.Compare(a.key, b.key)
}

// track records which keys d leaves sounding.
func (s *Sequencer) track(d midi.Dispatch) {
	m := d.Message
	switch {
	case m.Kind == midi.KindNoteOn && m.Velocity > 0:
		s.held[heldNote{d.Port, d.Channel, m.Key}] = struct{}{}
	case m.Kind == midi.KindNoteOn, m.Kind == midi.KindNoteOff:
		delete(s.held, heldNote{d.Port, d.Channel, m.Key})
	case m.Kind == midi.KindGlobalNoteOff:
		// all-notes-off always goes out on channel 0
		for n := range s.held {
			if n.port == d.Port && n.ch == 0 {
				delete(s.held, n)
			}
		}
	}
}

// release sends a note-off for every sounding key on its own channel.
func (s *Sequencer) release(at Tick) {
	if len(s.held) == 0 {
		return
	}
	notes := make([]heldNote, 0, len(s.held))
	for n := range s.held {
		notes = append(notes, n)
	}
	slices.SortFunc(notes, compareHeld)
	clear(s.held)

	for _, n := range notes {
		s.send(midi.NewDispatch(uint64(at), n.port, n.ch, midi.NoteOff(n.key, 0)))
	}
}

// silence releases sounding keys, then sends all-notes-off to each port
// in use.
func (s *Sequencer) silence(at Tick) {
	s.release(at)
	for _, port := range s.storage.outputPorts() {
		s.send(midi.NewDispatch(uint64(at), port, 0, midi.GlobalNoteOff()))
	}
}

// notifyUpdate signals the UI without blocking
func (s *Sequencer) notifyUpdate() {
	select {
	case s.UpdateChan <- struct{}{}:
	default:
	}
}
