package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Cell is one column of a lane
type Cell struct {
	Symbol rune
	Color  lipgloss.Color // empty renders unstyled
	Bold   bool
}

// RenderCell renders a single colored symbol
func RenderCell(c Cell) string {
	if c.Color == "" && !c.Bold {
		return string(c.Symbol)
	}
	style := lipgloss.NewStyle().Bold(c.Bold)
	if c.Color != "" {
		style = style.Foreground(c.Color)
	}
	return style.Render(string(c.Symbol))
}

// RenderLane renders cells left to right with no spacing
func RenderLane(cells []Cell) string {
	var out strings.Builder
	for _, c := range cells {
		out.WriteString(RenderCell(c))
	}
	return out.String()
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
