package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"midiseq/midi"
	"midiseq/sequencer"
	"midiseq/theme"
	"midiseq/widgets"
)

// frameInterval caps redraws driven by the sequencer
const frameInterval = time.Second / 30

// laneWidth is the number of sixteenth-note cells shown per track
const laneWidth = 32

type Model struct {
	Storage  *sequencer.Storage
	Seq      *sequencer.Sequencer
	Theme    *theme.Theme
	selected int
	status   string
	showHelp bool
	quitting bool
}

var keyHelp = []widgets.KeySection{
	{Title: "Transport", Keys: []widgets.KeyBinding{
		{Key: "space / p", Desc: "play or pause"},
		{Key: "s", Desc: "stop, keep position"},
		{Key: "r", Desc: "reset to the start"},
		{Key: "+ / -", Desc: "tempo up or down 5 bpm"},
	}},
	{Title: "Tracks", Keys: []widgets.KeyBinding{
		{Key: "a / x", Desc: "add track, remove last track"},
		{Key: "j / k", Desc: "select next or previous"},
		{Key: "[ / ]", Desc: "output port down or up"},
		{Key: "m / o", Desc: "toggle mute or solo"},
		{Key: "n", Desc: "add a note at the playhead beat"},
	}},
	{Keys: []widgets.KeyBinding{
		{Key: "?", Desc: "toggle this help"},
		{Key: "q", Desc: "quit"},
	}},
}

type UpdateMsg struct{}

type resumeMsg struct{}

func NewModel(storage *sequencer.Storage, seq *sequencer.Sequencer, th *theme.Theme) Model {
	if th == nil {
		th = theme.New(nil)
	}
	return Model{
		Storage: storage,
		Seq:     seq,
		Theme:   th,
	}
}

func ListenForUpdates(seq *sequencer.Sequencer) tea.Cmd {
	return func() tea.Msg {
		<-seq.UpdateChan
		return UpdateMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForUpdates(m.Seq)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case UpdateMsg:
		// Redraw now, then wait a frame before listening again.
		return m, tea.Tick(frameInterval, func(time.Time) tea.Msg { return resumeMsg{} })

	case resumeMsg:
		return m, ListenForUpdates(m.Seq)
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	m.status = ""
	var err error

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		m.command(sequencer.Stop)
		return m, tea.Quit

	case " ", "p":
		if m.Storage.Transport().State == sequencer.Running {
			m.command(sequencer.Pause)
		} else {
			m.command(sequencer.Play)
		}

	case "s":
		m.command(sequencer.Stop)

	case "r":
		m.command(sequencer.Reset)

	case "+", "=":
		err = m.Storage.SetTempo(m.Storage.Tempo() + 5)

	case "-", "_":
		err = m.Storage.SetTempo(m.Storage.Tempo() - 5)

	case "a":
		id := m.Storage.AddTrack()
		m.selected = int(id)

	case "x":
		if _, err = m.Storage.RemoveTrack(); err == nil {
			m.clampSelection()
		}

	case "j", "down":
		m.selected++
		m.clampSelection()

	case "k", "up":
		m.selected--
		m.clampSelection()

	case "n":
		err = m.addNote()

	case "m", "o":
		err = m.toggleMuteSolo(key == "m")

	case "[", "]":
		err = m.nudgePort(key == "]")

	case "?":
		m.showHelp = !m.showHelp
	}

	if err != nil {
		m.status = describe(err)
	}
	return m, nil
}

// command queues cmd without ever blocking the UI
func (m *Model) command(cmd sequencer.Command) {
	select {
	case m.Seq.Commands() <- cmd:
	default:
		m.status = "transport busy, " + cmd.String() + " dropped"
	}
}

func (m *Model) clampSelection() {
	n := m.Storage.TrackCount()
	if m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *Model) selectedTrack() (sequencer.TrackInfo, bool) {
	tracks := m.Storage.Tracks()
	if m.selected < 0 || m.selected >= len(tracks) {
		return sequencer.TrackInfo{}, false
	}
	return tracks[m.selected], true
}

// addNote drops an eighth-note block on the beat under the playhead,
// creating the track's first clip if needed.
func (m *Model) addNote() error {
	t, ok := m.selectedTrack()
	if !ok {
		return fmt.Errorf("no track selected: %w", sequencer.ErrNotFound)
	}

	var clip sequencer.ClipID
	if len(t.Clips) > 0 {
		clip = t.Clips[0].ID
	} else {
		id, err := m.Storage.NewClip(t.ID, "Clip 1")
		if err != nil {
			return err
		}
		clip = id
	}

	ppqn := m.Storage.PPQN()
	beat := int(m.Storage.Transport().Position.AsBeat(ppqn))
	at := sequencer.FromBeats(float64(beat), ppqn)
	key := uint8(60 + (beat % 12))
	if t.Instrument.Channel == midi.DrumChannel {
		key = midi.GetKit(midi.DefaultKit).Notes[beat%16]
	}
	_, err := m.Storage.InsertEventBlock(clip, at, uint32(ppqn/2), midi.Note{Key: key, Velocity: 100})
	if err == nil {
		m.status = fmt.Sprintf("%s at beat %d", midi.KeyLabel(t.Instrument.Channel, key), beat+1)
	}
	return err
}

func (m *Model) toggleMuteSolo(mute bool) error {
	t, ok := m.selectedTrack()
	if !ok {
		return fmt.Errorf("no track selected: %w", sequencer.ErrNotFound)
	}
	if mute {
		return m.Storage.SetTrackMuted(t.ID, !t.Muted)
	}
	return m.Storage.SetTrackSolo(t.ID, !t.Solo)
}

func (m *Model) nudgePort(up bool) error {
	t, ok := m.selectedTrack()
	if !ok {
		return fmt.Errorf("no track selected: %w", sequencer.ErrNotFound)
	}
	port := int(t.Instrument.Port) - 1
	if up {
		port = int(t.Instrument.Port) + 1
	}
	return m.Storage.SetTrackPort(t.ID, port)
}

func describe(err error) string {
	switch {
	case errors.Is(err, sequencer.ErrInvalidParameter):
		return "invalid: " + err.Error()
	case errors.Is(err, sequencer.ErrNotFound):
		return "not found: " + err.Error()
	}
	return err.Error()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	tr := m.Storage.Transport()
	ppqn := m.Storage.PPQN()

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	cursorStyle := lipgloss.NewStyle().Foreground(m.Theme.Cursor())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	header := headerStyle.Render(fmt.Sprintf("midiseq  %-7s  %5.1fbpm  beat %7.2f  tick %d",
		strings.ToUpper(tr.State.String()), m.Storage.Tempo(), tr.Position.AsBeat(ppqn)+1, tr.Position))

	step := sequencer.Tick(ppqn / 4)
	if step == 0 {
		step = 1
	}
	window := step * laneWidth
	start := tr.Position / window * window

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")

	tracks := m.Storage.Tracks()
	if len(tracks) == 0 {
		out.WriteString(dimStyle.Render("  no tracks, press a to add one"))
		out.WriteString("\n")
	}
	for i, t := range tracks {
		var events []sequencer.Timed
		for _, c := range t.Clips {
			if evs, ok := m.Storage.ClipEvents(c.ID); ok {
				events = append(events, evs...)
			}
		}

		flags := []rune{' ', ' '}
		if t.Muted {
			flags[0] = m.Theme.Symbols.Muted
		}
		if t.Solo {
			flags[1] = m.Theme.Symbols.Solo
		}

		label := fmt.Sprintf("%-10.10s p%-2d ch%-2d %s ", t.Name, t.Instrument.Port, t.Instrument.Channel+1, string(flags))
		cursor := "  "
		if i == m.selected {
			cursor = cursorStyle.Render("> ")
		}
		out.WriteString(cursor)
		out.WriteString(label)
		out.WriteString(widgets.RenderLane(m.lane(events, start, step, tr.Position)))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	if m.status != "" {
		out.WriteString(warnStyle.Render(m.status))
		out.WriteString("\n")
	}
	if m.showHelp {
		out.WriteString(dimStyle.Render(widgets.RenderKeyHelp(keyHelp)))
	} else {
		out.WriteString(dimStyle.Render("space:play/pause s:stop r:reset +/-:tempo a/x:track n:note ?:help q:quit"))
	}
	return out.String()
}

// lane maps events onto laneWidth cells of step ticks starting at start.
// A cell shows the first event it contains; the playhead cell is marked
// when empty.
func (m Model) lane(events []sequencer.Timed, start, step, playhead sequencer.Tick) []widgets.Cell {
	sym := m.Theme.Symbols
	cells := make([]widgets.Cell, laneWidth)
	for i := range cells {
		cells[i] = widgets.Cell{Symbol: sym.Empty, Color: m.Theme.Muted()}
	}
	filled := make([]bool, laneWidth)

	for _, ev := range events {
		if ev.Tick < start {
			continue
		}
		idx := int((ev.Tick - start) / step)
		if idx >= laneWidth || filled[idx] {
			continue
		}
		filled[idx] = true
		c := widgets.Cell{Symbol: sym.NoteOff, Color: m.Theme.FG()}
		switch {
		case !ev.Entry.Active:
			c = widgets.Cell{Symbol: sym.Inactive, Color: m.Theme.Muted()}
		case ev.Entry.Message.Kind == midi.KindNoteOn:
			c = widgets.Cell{Symbol: sym.NoteOn, Color: m.Theme.Velocity(ev.Entry.Message.Velocity)}
		}
		cells[idx] = c
	}

	if playhead >= start {
		if idx := int((playhead - start) / step); idx < laneWidth {
			if !filled[idx] {
				cells[idx].Symbol = sym.Playhead
			}
			cells[idx].Color = m.Theme.Success()
			cells[idx].Bold = true
		}
	}
	return cells
}
