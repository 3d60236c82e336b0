package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

// Symbols used by the track lanes
type Symbols struct {
	Empty    rune // · nothing scheduled
	NoteOn   rune // ● note starts
	NoteOff  rune // ○ note ends
	Inactive rune // × entry kept but skipped
	Playhead rune // ▶ current tick
	Muted    rune // m
	Solo     rune // s
}

func New(palette *Palette) *Theme {
	if palette == nil || len(palette.Colors) == 0 {
		palette = Plasma()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Empty:    '·',
			NoteOn:   '●',
			NoteOff:  '○',
			Inactive: '×',
			Playhead: '▶',
			Muted:    'm',
			Solo:     's',
		},
	}
}

// Load uses the palette at path, or the built-in one when path is empty.
func Load(path string) (*Theme, error) {
	if path == "" {
		return New(Plasma()), nil
	}
	p, err := LoadGPL(path)
	if err != nil {
		return nil, err
	}
	return New(p), nil
}

// Color roles mapped to palette positions (0-1)
const (
	RoleMuted   = 0.2
	RoleFG      = 0.6
	RoleAccent  = 0.5
	RoleCursor  = 0.75
	RoleActive  = 0.65
	RoleWarning = 0.85
	RoleSuccess = 1.0
)

func (t *Theme) FG() lipgloss.Color      { return t.Color(RoleFG) }
func (t *Theme) Accent() lipgloss.Color  { return t.Color(RoleAccent) }
func (t *Theme) Muted() lipgloss.Color   { return t.Color(RoleMuted) }
func (t *Theme) Active() lipgloss.Color  { return t.Color(RoleActive) }
func (t *Theme) Cursor() lipgloss.Color  { return t.Color(RoleCursor) }
func (t *Theme) Warning() lipgloss.Color { return t.Color(RoleWarning) }
func (t *Theme) Success() lipgloss.Color { return t.Color(RoleSuccess) }

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	c := t.Palette.Lookup(norm)
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}

// Velocity colors a note by its velocity, quiet notes toward the dark end.
func (t *Theme) Velocity(v uint8) lipgloss.Color {
	return t.Color(0.3 + 0.7*float64(v)/127)
}
