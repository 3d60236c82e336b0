package sequencer

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"midiseq/midi"
)

// Tempo limits in BPM
const (
	MinTempo = 20.0
	MaxTempo = 300.0
)

// DefaultPorts is the number of addressable output ports when none are
// configured.
const DefaultPorts = 16

// State is the transport state.
type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Transport is the playback state as seen by readers.
type Transport struct {
	State    State
	Position Tick
}

// Options configure a new Storage. Zero fields take defaults.
type Options struct {
	PPQN  int
	Tempo float64
	Ports int
}

func DefaultOptions() Options {
	return Options{PPQN: DefaultPPQN, Tempo: 120, Ports: DefaultPorts}
}

// Storage is the project: tracks, the instrument registry, tempo and
// transport. It is shared by pointer between editors (writers) and the
// Sequencer (reader). Every method takes the lock itself and holds it only
// for the duration of the call.
type Storage struct {
	mu          sync.RWMutex
	ppqn        int
	ports       int
	tempo       float64
	tracks      []*Track
	instruments []Instrument
	transport   Transport

	listenersMu sync.Mutex
	listeners   []func()
}

func NewStorage(opts Options) *Storage {
	def := DefaultOptions()
	if opts.PPQN <= 0 {
		opts.PPQN = def.PPQN
	}
	if opts.Tempo <= 0 {
		opts.Tempo = def.Tempo
	}
	if opts.Ports <= 0 {
		opts.Ports = def.Ports
	}
	return &Storage{
		ppqn:  opts.PPQN,
		ports: opts.Ports,
		tempo: opts.Tempo,
	}
}

// OnChange registers fn to run after every successful edit. Transport
// movement does not count as an edit. fn runs on the editing goroutine
// after the lock is released.
func (s *Storage) OnChange(fn func()) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

func (s *Storage) notify() {
	s.listenersMu.Lock()
	fns := append([]func(){}, s.listeners...)
	s.listenersMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// edit runs fn under the write lock and notifies listeners on success.
func (s *Storage) edit(fn func() error) error {
	s.mu.Lock()
	err := fn()
	s.mu.Unlock()
	if err == nil {
		s.notify()
	}
	return err
}

func (s *Storage) trackLocked(id TrackID) (*Track, error) {
	if id < 0 || int(id) >= len(s.tracks) {
		return nil, fmt.Errorf("track %d: %w", id, ErrNotFound)
	}
	return s.tracks[id], nil
}

// findClipLocked scans every track; projects hold tens of tracks and
// hundreds of clips, so a linear scan is fine.
func (s *Storage) findClipLocked(id ClipID) (*Track, *Clip, error) {
	for _, t := range s.tracks {
		if c, ok := t.FindClip(id); ok {
			return t, c, nil
		}
	}
	return nil, nil, fmt.Errorf("clip %d: %w", id, ErrNotFound)
}

// Read side

func (s *Storage) PPQN() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ppqn
}

func (s *Storage) Ports() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ports
}

func (s *Storage) Tempo() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tempo
}

func (s *Storage) Transport() Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport
}

func (s *Storage) TrackCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// ClipInfo summarizes a clip for display.
type ClipInfo struct {
	ID         ClipID      `json:"id"`
	Name       string      `json:"name"`
	Events     int         `json:"events"`
	Instrument *Instrument `json:"instrument,omitempty"`
}

// TrackInfo summarizes a track for display.
type TrackInfo struct {
	ID         TrackID    `json:"id"`
	Name       string     `json:"name"`
	Instrument Instrument `json:"instrument"`
	Muted      bool       `json:"muted"`
	Solo       bool       `json:"solo"`
	Clips      []ClipInfo `json:"clips"`
}

// Tracks returns a copy of the track layout.
func (s *Storage) Tracks() []TrackInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TrackInfo, len(s.tracks))
	for i, t := range s.tracks {
		info := TrackInfo{
			ID:         t.ID,
			Name:       t.Name,
			Instrument: t.Instrument,
			Muted:      t.Muted,
			Solo:       t.Solo,
			Clips:      make([]ClipInfo, len(t.Clips)),
		}
		for j, c := range t.Clips {
			info.Clips[j] = ClipInfo{ID: c.ID, Name: c.Name, Events: c.Events.Len(), Instrument: cloneInstrument(c.Instrument)}
		}
		out[i] = info
	}
	return out
}

// Instruments returns a copy of the registry.
func (s *Storage) Instruments() []Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Instrument(nil), s.instruments...)
}

// ViewClip runs fn on the clip with id under the read lock. fn must not
// modify the clip or keep references to it. It reports whether the clip
// exists.
func (s *Storage) ViewClip(id ClipID, fn func(*Clip)) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, c, err := s.findClipLocked(id)
	if err != nil {
		return false
	}
	fn(c)
	return true
}

// ClipEvents returns a copy of a clip's events in order.
func (s *Storage) ClipEvents(id ClipID) ([]Timed, bool) {
	var out []Timed
	ok := s.ViewClip(id, func(c *Clip) {
		out = c.Events.EventsBetween(0, MaxTick)
	})
	return out, ok
}

// AllEvents merges every clip of every track into one tick-ordered list,
// for display and debugging.
func (s *Storage) AllEvents() []Timed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var lists []*EventList
	for _, t := range s.tracks {
		for _, c := range t.Clips {
			lists = append(lists, c.Events)
		}
	}
	return Merge(lists...)
}

// Due is an event scheduled at the queried tick, with its routing resolved.
type Due struct {
	Track      TrackID
	Clip       ClipID
	Tick       Tick
	Entry      EventEntry
	Instrument Instrument
	Muted      bool // track muted, or another track is soloed
}

// Audible reports whether the event should reach the output.
func (d Due) Audible() bool {
	return d.Entry.Active && !d.Muted
}

// EventsDue returns the events scheduled exactly at tick, in track order
// then clip order. The result is a copy; the lock is released on return.
func (s *Storage) EventsDue(tick Tick) []Due {
	s.mu.RLock()
	defer s.mu.RUnlock()

	anySolo := false
	for _, t := range s.tracks {
		if t.Solo {
			anySolo = true
			break
		}
	}

	var out []Due
	for _, t := range s.tracks {
		muted := t.Muted || (anySolo && !t.Solo)
		for _, c := range t.Clips {
			for _, it := range c.Events.EventsBetween(tick, tick) {
				out = append(out, Due{
					Track:      t.ID,
					Clip:       c.ID,
					Tick:       it.Tick,
					Entry:      it.Entry,
					Instrument: t.resolve(c, it.Entry),
					Muted:      muted,
				})
			}
		}
	}
	return out
}

// Write side

// AddTrack appends a track whose id is its index, routed to port 0 on
// channel id%16.
func (s *Storage) AddTrack() TrackID {
	var id TrackID
	s.edit(func() error {
		id = TrackID(len(s.tracks))
		name := fmt.Sprintf("Track %d", id+1)
		s.tracks = append(s.tracks, NewTrack(id, name, Instrument{
			Name:    name,
			Port:    0,
			Channel: midi.Channel(int(id) % midi.NumChannels),
		}))
		return nil
	})
	return id
}

// RemoveTrack removes the last track. Ids held for it become stale; the
// remaining ids are unaffected.
func (s *Storage) RemoveTrack() (TrackID, error) {
	var id TrackID
	err := s.edit(func() error {
		if len(s.tracks) == 0 {
			return fmt.Errorf("remove track: %w", ErrNotFound)
		}
		last := len(s.tracks) - 1
		id = s.tracks[last].ID
		s.tracks[last] = nil
		s.tracks = s.tracks[:last]
		return nil
	})
	return id, err
}

func (s *Storage) SetTrackName(id TrackID, name string) error {
	return s.edit(func() error {
		t, err := s.trackLocked(id)
		if err != nil {
			return err
		}
		t.Name = name
		return nil
	})
}

// SetTrackPort routes the track's default instrument to port.
func (s *Storage) SetTrackPort(id TrackID, port int) error {
	return s.edit(func() error {
		if !within(port, 0, s.ports-1) {
			return fmt.Errorf("port %d outside 0-%d: %w", port, s.ports-1, ErrInvalidParameter)
		}
		t, err := s.trackLocked(id)
		if err != nil {
			return err
		}
		t.Instrument.Port = midi.PortID(port)
		return nil
	})
}

// SetTrackChannel routes the track's default instrument to channel 0-15.
func (s *Storage) SetTrackChannel(id TrackID, channel int) error {
	return s.edit(func() error {
		if !within(channel, 0, midi.NumChannels-1) {
			return fmt.Errorf("channel %d outside 0-15: %w", channel, ErrInvalidParameter)
		}
		t, err := s.trackLocked(id)
		if err != nil {
			return err
		}
		t.Instrument.Channel = midi.Channel(channel)
		return nil
	})
}

func (s *Storage) SetTrackMuted(id TrackID, muted bool) error {
	return s.edit(func() error {
		t, err := s.trackLocked(id)
		if err != nil {
			return err
		}
		t.Muted = muted
		return nil
	})
}

func (s *Storage) SetTrackSolo(id TrackID, solo bool) error {
	return s.edit(func() error {
		t, err := s.trackLocked(id)
		if err != nil {
			return err
		}
		t.Solo = solo
		return nil
	})
}

// SetTempo sets the tempo in BPM. The sequencer picks it up at the next
// tick boundary.
func (s *Storage) SetTempo(bpm float64) error {
	if math.IsNaN(bpm) || !within(bpm, MinTempo, MaxTempo) {
		return fmt.Errorf("tempo %v outside %v-%v: %w", bpm, MinTempo, MaxTempo, ErrInvalidParameter)
	}
	return s.edit(func() error {
		s.tempo = bpm
		return nil
	})
}

// AddInstrument registers a named instrument and returns its index.
// Registering an existing name replaces it.
func (s *Storage) AddInstrument(in Instrument) (int, error) {
	idx := -1
	err := s.edit(func() error {
		if in.Name == "" {
			return fmt.Errorf("instrument name is empty: %w", ErrInvalidParameter)
		}
		if err := in.validate(s.ports); err != nil {
			return err
		}
		for i := range s.instruments {
			if s.instruments[i].Name == in.Name {
				s.instruments[i] = in
				idx = i
				return nil
			}
		}
		s.instruments = append(s.instruments, in)
		idx = len(s.instruments) - 1
		return nil
	})
	return idx, err
}

// UseInstrument copies the registered instrument called name onto the
// track as its default.
func (s *Storage) UseInstrument(id TrackID, name string) error {
	return s.edit(func() error {
		t, err := s.trackLocked(id)
		if err != nil {
			return err
		}
		for _, in := range s.instruments {
			if in.Name == name {
				t.Instrument = in
				return nil
			}
		}
		return fmt.Errorf("instrument %q: %w", name, ErrNotFound)
	})
}

// AddClip appends clip to the track.
func (s *Storage) AddClip(id TrackID, clip *Clip) error {
	if clip == nil {
		return fmt.Errorf("nil clip: %w", ErrInvalidParameter)
	}
	if clip.ID == 0 {
		clip.ID = nextClipID()
	}
	if clip.Events == nil {
		clip.Events = NewEventList()
	}
	return s.edit(func() error {
		t, err := s.trackLocked(id)
		if err != nil {
			return err
		}
		if clip.Instrument != nil {
			if err := clip.Instrument.validate(s.ports); err != nil {
				return err
			}
		}
		if _, _, err := s.findClipLocked(clip.ID); err == nil {
			return fmt.Errorf("clip %d already added: %w", clip.ID, ErrInvalidParameter)
		}
		t.AddClip(clip)
		return nil
	})
}

// NewClip creates an empty clip on the track and returns its id.
func (s *Storage) NewClip(id TrackID, name string) (ClipID, error) {
	c := NewClip(name)
	if err := s.AddClip(id, c); err != nil {
		return 0, err
	}
	return c.ID, nil
}

func (s *Storage) RemoveClip(id ClipID) error {
	return s.edit(func() error {
		t, _, err := s.findClipLocked(id)
		if err != nil {
			return err
		}
		t.RemoveClip(id)
		return nil
	})
}

// SetClipInstrument sets or, with nil, clears the clip's override.
func (s *Storage) SetClipInstrument(id ClipID, in *Instrument) error {
	return s.edit(func() error {
		if in != nil {
			if err := in.validate(s.ports); err != nil {
				return err
			}
		}
		_, c, err := s.findClipLocked(id)
		if err != nil {
			return err
		}
		c.Instrument = cloneInstrument(in)
		return nil
	})
}

// EditClip runs fn on the clip under the write lock. Keep fn short; the
// sequencer waits for it.
func (s *Storage) EditClip(id ClipID, fn func(*Clip) error) error {
	return s.edit(func() error {
		_, c, err := s.findClipLocked(id)
		if err != nil {
			return err
		}
		return fn(c)
	})
}

func validMessage(m midi.Message) bool {
	switch m.Kind {
	case midi.KindNoteOn, midi.KindNoteOff:
		return m.Key <= 127 && m.Velocity <= 127
	case midi.KindGlobalNoteOff:
		return true
	}
	return false
}

// InsertEvent stores entry at tick in the clip, replacing any entry there.
func (s *Storage) InsertEvent(id ClipID, tick Tick, entry EventEntry) error {
	if !validMessage(entry.Message) {
		return fmt.Errorf("message %s: %w", entry.Message, ErrInvalidParameter)
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return s.edit(func() error {
		if entry.Instrument != nil {
			if err := entry.Instrument.validate(s.ports); err != nil {
				return err
			}
		}
		_, c, err := s.findClipLocked(id)
		if err != nil {
			return err
		}
		c.Events.Insert(tick, entry)
		return nil
	})
}

// InsertEventBlock inserts a note-on at tick and its note-off at
// tick+duration under one id. Routing comes from the clip or track, not
// from note.Channel.
func (s *Storage) InsertEventBlock(id ClipID, tick Tick, duration uint32, note midi.Note) (uuid.UUID, error) {
	var block uuid.UUID
	err := s.edit(func() error {
		_, c, err := s.findClipLocked(id)
		if err != nil {
			return err
		}
		block, err = c.Events.InsertBlock(tick, duration, note)
		return err
	})
	return block, err
}

// SetEventActive mutes or unmutes a single entry without deleting it.
func (s *Storage) SetEventActive(id ClipID, tick Tick, active bool) error {
	return s.edit(func() error {
		_, c, err := s.findClipLocked(id)
		if err != nil {
			return err
		}
		if !c.Events.SetActive(tick, active) {
			return fmt.Errorf("event at %d in clip %d: %w", tick, id, ErrNotFound)
		}
		return nil
	})
}

func (s *Storage) RemoveEvent(id ClipID, tick Tick) error {
	return s.edit(func() error {
		_, c, err := s.findClipLocked(id)
		if err != nil {
			return err
		}
		if !c.Events.Remove(tick) {
			return fmt.Errorf("event at %d in clip %d: %w", tick, id, ErrNotFound)
		}
		return nil
	})
}

// CancelBlock removes both halves of the block with the given id.
func (s *Storage) CancelBlock(id ClipID, block uuid.UUID) error {
	return s.edit(func() error {
		_, c, err := s.findClipLocked(id)
		if err != nil {
			return err
		}
		if c.Events.RemoveID(block) == 0 {
			return fmt.Errorf("block %s in clip %d: %w", block, id, ErrNotFound)
		}
		return nil
	})
}

// Transport, written only by the Sequencer

// playhead returns the position if the transport is running.
func (s *Storage) playhead() (Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport.Position, s.transport.State == Running
}

func (s *Storage) setTransport(t Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

// advance moves the playhead one pulse past from, provided the transport
// is still running there.
func (s *Storage) advance(from Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport.State != Running || s.transport.Position != from {
		return nil
	}
	return s.transport.Position.Advance()
}

// outputPorts lists the distinct ports any track or clip routes to.
func (s *Storage) outputPorts() []midi.PortID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[midi.PortID]bool)
	var out []midi.PortID
	add := func(p midi.PortID) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, t := range s.tracks {
		add(t.Instrument.Port)
		for _, c := range t.Clips {
			if c.Instrument != nil {
				add(c.Instrument.Port)
			}
		}
	}
	return out
}
