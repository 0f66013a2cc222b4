package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabforest/internal/model"
)

// DetailModel shows information about the selected row.
type DetailModel struct {
	Width  int
	Height int
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	age := time.Since(t)
	days := int(age.Hours() / 24)
	switch {
	case days > 0:
		return fmt.Sprintf("%d days ago", days)
	case int(age.Hours()) > 0:
		return fmt.Sprintf("%d hours ago", int(age.Hours()))
	default:
		return "just now"
	}
}

// ViewTab renders the tab's edge and page.
func (m DetailModel) ViewTab(e model.EdgeData, n model.NodeData, act model.ActivityData) string {
	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	valueStyle := lipgloss.NewStyle()
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	width := max(m.Width-2, 10)

	var b strings.Builder
	field := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + "\n")
		// Wrap long values
		for len(value) > width {
			b.WriteString(valueStyle.Render(value[:width]) + "\n")
			value = value[width:]
		}
		b.WriteString(valueStyle.Render(value) + "\n\n")
	}

	title := n.Title
	if title == "" {
		title = dimStyle.Render("(untitled)")
	}
	field("Title", title)
	if e.Title != "" {
		field("Tab title", e.Title)
	}
	if n.Exists() {
		field("URL", n.URL)
		field("Last Visited", ago(n.VisitedAt))
	} else {
		field("URL", dimStyle.Render("(blank tab)"))
	}
	field("Opened", ago(e.CreatedAt))
	if !n.StarredAt.IsZero() {
		field("Starred", ago(n.StarredAt))
	}

	switch {
	case !act.Exists():
		field("State", "unloaded")
	case act.Loading():
		field("State", "loading "+act.LoadingAddress)
	default:
		field("State", fmt.Sprintf("live (%s)", act.ID))
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s · %s", e.ID, n.ID)))
	return b.String()
}

// ViewTree renders a tree header.
func (m DetailModel) ViewTree(t model.TreeData, tabs int) string {
	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	valueStyle := lipgloss.NewStyle()

	var b strings.Builder
	b.WriteString(labelStyle.Render("Tree") + "\n")
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", t.ID)) + "\n\n")

	b.WriteString(labelStyle.Render("Tabs") + "\n")
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", tabs)) + "\n\n")

	b.WriteString(labelStyle.Render("Created") + "\n")
	b.WriteString(valueStyle.Render(ago(t.CreatedAt)) + "\n\n")

	b.WriteString(labelStyle.Render("Expanded") + "\n")
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d tabs", len(t.ExpandedTabs))) + "\n")
	return b.String()
}
