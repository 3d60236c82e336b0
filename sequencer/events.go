package sequencer

import (
	"fmt"
	"iter"
	"sort"

	"github.com/google/btree"
	"github.com/google/uuid"

	"midiseq/midi"
)

// EventEntry is a scheduled message. Entries of one event block share an
// ID so the note-on and note-off can be found and cancelled together.
// Inactive entries stay in the list but are skipped on playback.
type EventEntry struct {
	ID         uuid.UUID
	Message    midi.Message
	Active     bool
	Instrument *Instrument // optional per-event override, never mutated once stored
}

// NewEntry wraps msg in an active entry with a fresh identity.
func NewEntry(msg midi.Message) EventEntry {
	return EventEntry{ID: uuid.New(), Message: msg, Active: true}
}

// Timed pairs an entry with its position.
type Timed struct {
	Tick  Tick
	Entry EventEntry
}

func byTick(a, b Timed) bool {
	return a.Tick < b.Tick
}

// btree degree; small lists dominate so keep nodes compact
const eventListDegree = 8

// EventList is an ordered map from Tick to EventEntry with at most one
// entry per tick. It is not safe for concurrent use; Storage provides the
// locking.
type EventList struct {
	tree *btree.BTreeG[Timed]
}

func NewEventList() *EventList {
	return &EventList{tree: btree.NewG(eventListDegree, byTick)}
}

// Insert stores entry at tick, replacing whatever was there. It reports
// whether an entry was replaced.
func (l *EventList) Insert(tick Tick, entry EventEntry) bool {
	entry.Instrument = cloneInstrument(entry.Instrument)
	_, replaced := l.tree.ReplaceOrInsert(Timed{Tick: tick, Entry: entry})
	return replaced
}

// InsertBlock inserts a note-on at start and the matching note-off at
// start+duration, both under one new ID. Nothing is inserted on error.
// An occupied end tick is overwritten like any other insert.
func (l *EventList) InsertBlock(start Tick, duration uint32, note midi.Note) (uuid.UUID, error) {
	if duration == 0 {
		return uuid.Nil, fmt.Errorf("block at %d: %w", start, ErrInvalidDuration)
	}
	if !note.Valid() {
		return uuid.Nil, fmt.Errorf("note %+v: %w", note, ErrInvalidParameter)
	}
	end, err := start.Offset(duration)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	l.Insert(start, EventEntry{ID: id, Message: midi.NoteOn(note.Key, note.Velocity), Active: true})
	l.Insert(end, EventEntry{ID: id, Message: midi.NoteOff(note.Key, note.Velocity), Active: true})
	return id, nil
}

func (l *EventList) Get(tick Tick) (EventEntry, bool) {
	it, ok := l.tree.Get(Timed{Tick: tick})
	return it.Entry, ok
}

func (l *EventList) Remove(tick Tick) bool {
	_, ok := l.tree.Delete(Timed{Tick: tick})
	return ok
}

// RemoveID deletes every entry carrying id and returns how many went.
func (l *EventList) RemoveID(id uuid.UUID) int {
	var ticks []Tick
	l.tree.Ascend(func(it Timed) bool {
		if it.Entry.ID == id {
			ticks = append(ticks, it.Tick)
		}
		return true
	})
	for _, t := range ticks {
		l.tree.Delete(Timed{Tick: t})
	}
	return len(ticks)
}

// SetActive toggles playback of the entry at tick without deleting it.
func (l *EventList) SetActive(tick Tick, active bool) bool {
	it, ok := l.tree.Get(Timed{Tick: tick})
	if !ok {
		return false
	}
	it.Entry.Active = active
	l.tree.ReplaceOrInsert(it)
	return true
}

func (l *EventList) Len() int {
	return l.tree.Len()
}

// All iterates entries in ascending tick order. The sequence can be ranged
// over any number of times and always reflects the current contents.
func (l *EventList) All() iter.Seq2[Tick, EventEntry] {
	return func(yield func(Tick, EventEntry) bool) {
		l.tree.Ascend(func(it Timed) bool {
			return yield(it.Tick, it.Entry)
		})
	}
}

// EventsBetween returns the entries with lo <= tick <= hi in order.
func (l *EventList) EventsBetween(lo, hi Tick) []Timed {
	if lo > hi {
		return nil
	}
	var out []Timed
	l.tree.AscendGreaterOrEqual(Timed{Tick: lo}, func(it Timed) bool {
		if it.Tick > hi {
			return false
		}
		out = append(out, it)
		return true
	})
	return out
}

// Clone returns an independent copy of the list. The copy is lazy and
// touches l, so the caller needs exclusive access to l for the call.
func (l *EventList) Clone() *EventList {
	return &EventList{tree: l.tree.Clone()}
}

// Merge flattens lists into one slice ordered by tick. Entries on the same
// tick keep the order of the lists they came from; callers should not rely
// on anything beyond that.
func Merge(lists ...*EventList) []Timed {
	n := 0
	for _, l := range lists {
		n += l.Len()
	}
	out := make([]Timed, 0, n)
	for _, l := range lists {
		l.tree.Ascend(func(it Timed) bool {
			out = append(out, it)
			return true
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Tick < out[j].Tick
	})
	return out
}
