package sequencer

import (
	"sync/atomic"
)

// ClipID identifies a clip for the lifetime of the process.
type ClipID uint64

var lastClipID atomic.Uint64

func nextClipID() ClipID {
	return ClipID(lastClipID.Add(1))
}

// Clip is a named container of events. An optional Instrument overrides
// the owning track's default for every event in the clip.
type Clip struct {
	ID         ClipID
	Name       string
	Events     *EventList
	Instrument *Instrument
}

// NewClip creates an empty clip with a fresh id.
func NewClip(name string) *Clip {
	return &Clip{
		ID:     nextClipID(),
		Name:   name,
		Events: NewEventList(),
	}
}

// TrackID is the position of a track in its project at creation time.
type TrackID int

// Track is an ordered list of clips sharing a default instrument.
type Track struct {
	ID         TrackID
	Name       string
	Instrument Instrument
	Clips      []*Clip
	Muted      bool
	Solo       bool
}

// NewTrack creates an empty track routed to instrument.
func NewTrack(id TrackID, name string, instrument Instrument) *Track {
	return &Track{
		ID:         id,
		Name:       name,
		Instrument: instrument,
	}
}

// AddClip appends c to the track.
func (t *Track) AddClip(c *Clip) {
	t.Clips = append(t.Clips, c)
}

// FindClip returns the clip with id, if the track owns it.
func (t *Track) FindClip(id ClipID) (*Clip, bool) {
	for _, c := range t.Clips {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// RemoveClip drops the clip with id, keeping the order of the rest.
func (t *Track) RemoveClip(id ClipID) bool {
	for i, c := range t.Clips {
		if c.ID == id {
			t.Clips = append(t.Clips[:i], t.Clips[i+1:]...)
			return true
		}
	}
	return false
}

// resolve picks the instrument for an entry: event override, then clip
// override, then the track default.
func (t *Track) resolve(c *Clip, e EventEntry) Instrument {
	if e.Instrument != nil {
		return *e.Instrument
	}
	if c.Instrument != nil {
		return *c.Instrument
	}
	return t.Instrument
}
