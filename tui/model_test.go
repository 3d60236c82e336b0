package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"midiseq/midi"
	"midiseq/sequencer"
)

type nopOutput struct{}

func (nopOutput) Send(midi.Dispatch) error { return nil }

func newTestModel(t *testing.T) Model {
	t.Helper()
	storage := sequencer.NewStorage(sequencer.DefaultOptions())
	seq := sequencer.New(storage, nopOutput{})
	ctx, cancel := context.WithCancel(context.Background())
	go seq.Run(ctx)
	t.Cleanup(cancel)
	return NewModel(storage, seq, nil)
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestTrackKeys(t *testing.T) {
	m := newTestModel(t)
	m = press(m, "a", "a", "a")
	assert.Equal(t, 3, m.Storage.TrackCount())
	assert.Equal(t, 2, m.selected)

	m = press(m, "k", "k", "k")
	assert.Equal(t, 0, m.selected)
	m = press(m, "down")
	assert.Equal(t, 1, m.selected)

	m = press(m, "m", "o", "]", "]")
	info := m.Storage.Tracks()[1]
	assert.True(t, info.Muted)
	assert.True(t, info.Solo)
	assert.Equal(t, midi.PortID(2), info.Instrument.Port)

	m = press(m, "x", "x")
	assert.Equal(t, 1, m.Storage.TrackCount())
	assert.Equal(t, 0, m.selected)
}

func TestAddNote(t *testing.T) {
	m := newTestModel(t)
	m = press(m, "n")
	assert.NotEmpty(t, m.status)

	m = press(m, "a", "n")
	tracks := m.Storage.Tracks()
	require.Len(t, tracks[0].Clips, 1)
	events, ok := m.Storage.ClipEvents(tracks[0].Clips[0].ID)
	require.True(t, ok)
	require.Len(t, events, 2)
	assert.Equal(t, sequencer.Tick(0), events[0].Tick)
	assert.Equal(t, sequencer.Tick(240), events[1].Tick)
	assert.Contains(t, m.View(), "●")
	assert.Contains(t, m.status, "C4")
}

func TestAddNoteOnDrumChannel(t *testing.T) {
	m := newTestModel(t)
	m = press(m, "a")
	require.NoError(t, m.Storage.SetTrackChannel(0, int(midi.DrumChannel)))
	m = press(m, "n")
	assert.Equal(t, "Kick at beat 1", m.status)
}

func TestTempoKeys(t *testing.T) {
	m := newTestModel(t)
	m = press(m, "+", "+", "-")
	assert.Equal(t, 125.0, m.Storage.Tempo())

	require.NoError(t, m.Storage.SetTempo(sequencer.MaxTempo))
	m = press(m, "+")
	assert.Equal(t, sequencer.MaxTempo, m.Storage.Tempo())
	assert.Contains(t, m.status, "invalid")
}

func TestTransportKeys(t *testing.T) {
	m := newTestModel(t)
	m = press(m, " ")
	assert.Eventually(t, func() bool {
		return m.Storage.Transport().State == sequencer.Running
	}, time.Second, 5*time.Millisecond)

	m = press(m, " ")
	assert.Eventually(t, func() bool {
		return m.Storage.Transport().State == sequencer.Paused
	}, time.Second, 5*time.Millisecond)

	m = press(m, "r")
	assert.Eventually(t, func() bool {
		return m.Storage.Transport() == sequencer.Transport{State: sequencer.Stopped}
	}, time.Second, 5*time.Millisecond)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Empty(t, next.View())
}

func TestViewListsTracks(t *testing.T) {
	m := newTestModel(t)
	assert.Contains(t, m.View(), "no tracks")

	m = press(m, "a")
	view := m.View()
	assert.Contains(t, view, "Track 1")
	assert.Contains(t, view, "STOPPED")
	assert.Contains(t, view, "120.0bpm")
	assert.NotContains(t, view, "toggle mute or solo")

	m = press(m, "?")
	assert.Contains(t, m.View(), "toggle mute or solo")
}

func TestLaneMarksEvents(t *testing.T) {
	m := newTestModel(t)
	on := sequencer.NewEntry(midi.NoteOn(60, 100))
	off := sequencer.NewEntry(midi.NoteOff(60, 100))
	off.Active = false
	events := []sequencer.Timed{{Tick: 0, Entry: on}, {Tick: 250, Entry: off}, {Tick: 5000, Entry: on}}

	cells := m.lane(events, 0, 120, 130)
	require.Len(t, cells, laneWidth)
	sym := m.Theme.Symbols
	assert.Equal(t, sym.NoteOn, cells[0].Symbol)
	assert.Equal(t, sym.Playhead, cells[1].Symbol)
	assert.True(t, cells[1].Bold)
	assert.Equal(t, sym.Inactive, cells[2].Symbol)
	assert.Equal(t, sym.Empty, cells[3].Symbol)
}
