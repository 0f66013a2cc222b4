package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabforest/internal/firefox"
)

// ProfilePicker is an overlay listing Firefox profiles with what importing
// each one would open.
type ProfilePicker struct {
	Previews []firefox.Preview
	Cursor   int
	Width    int
	Height   int
}

// NewProfilePicker starts on the default profile.
func NewProfilePicker(previews []firefox.Preview) ProfilePicker {
	p := ProfilePicker{Previews: previews}
	for i, pv := range previews {
		if pv.Default {
			p.Cursor = i
			break
		}
	}
	return p
}

func (p *ProfilePicker) MoveUp() {
	if p.Cursor > 0 {
		p.Cursor--
	}
}

func (p *ProfilePicker) MoveDown() {
	if p.Cursor < len(p.Previews)-1 {
		p.Cursor++
	}
}

// Selected returns the preview under the cursor and whether it can be
// imported.
func (p ProfilePicker) Selected() (firefox.Preview, bool) {
	if p.Cursor >= len(p.Previews) {
		return firefox.Preview{}, false
	}
	pv := p.Previews[p.Cursor]
	return pv, pv.Err == nil && pv.Windows > 0
}

func previewLabel(pv firefox.Preview) string {
	name := pv.Name
	if pv.Default {
		name += " (default)"
	}
	switch {
	case pv.Err != nil:
		return fmt.Sprintf("%-24s unreadable session", name)
	case pv.Windows == 0:
		return fmt.Sprintf("%-24s nothing to import", name)
	}
	return fmt.Sprintf("%-24s %d trees · %d tabs", name, pv.Windows, pv.Tabs)
}

func (p ProfilePicker) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	selectedStyle := lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
	normalStyle := lipgloss.NewStyle().Padding(0, 1)
	dimStyle := lipgloss.NewStyle().Faint(true).Padding(0, 1)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Import windows from:") + "\n\n")
	for i, pv := range p.Previews {
		label := previewLabel(pv)
		switch {
		case i == p.Cursor:
			b.WriteString(selectedStyle.Render("> "+label) + "\n")
		case pv.Err != nil || pv.Windows == 0:
			b.WriteString(dimStyle.Render("  "+label) + "\n")
		default:
			b.WriteString(normalStyle.Render("  "+label) + "\n")
		}
	}
	b.WriteString("\n" + normalStyle.Render("↑↓ navigate · enter import · esc cancel"))
	return boxStyle.Render(b.String())
}
