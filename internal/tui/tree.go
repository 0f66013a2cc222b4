package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabforest/internal/model"
)

// Row is one visible line of the inspector: a tree header when Edge is 0,
// otherwise a tab.
type Row struct {
	Tree     model.TreeID
	Edge     model.EdgeID
	Depth    int
	Label    string
	Kids     int // live children
	Expanded bool
	Focused  bool
	Loading  bool
	Starred  bool
}

// IsTree reports whether r is a tree header.
func (r Row) IsTree() bool { return r.Edge == 0 }

// BuildRows flattens the open trees into rows. Children of a tab are listed
// only while the tab is expanded in its tree. A page reached again below
// itself isn't walked a second time.
func BuildRows(m *model.Model) ([]Row, error) {
	trees, err := m.OpenTrees()
	if err != nil {
		return nil, err
	}
	var rows []Row
	for _, id := range trees {
		t, err := m.Tree(id)
		if err != nil {
			return nil, err
		}
		header := len(rows)
		rows = append(rows, Row{Tree: id, Expanded: true})
		rows, err = appendTabs(m, rows, t, t.RootNode, 0, map[model.NodeID]bool{t.RootNode: true})
		if err != nil {
			return nil, err
		}
		tops, err := liveChildren(m, t.RootNode)
		if err != nil {
			return nil, err
		}
		rows[header].Kids = len(tops)
		rows[header].Label = fmt.Sprintf("Tree %d", id)
	}
	return rows, nil
}

func liveChildren(m *model.Model, node model.NodeID) ([]model.EdgeData, error) {
	if node == 0 {
		return nil, nil
	}
	ids, err := m.EdgesFromNode(node)
	if err != nil {
		return nil, err
	}
	var out []model.EdgeData
	for _, id := range ids {
		e, err := m.Edge(id)
		if err != nil {
			return nil, err
		}
		if !e.Trashed() {
			out = append(out, e)
		}
	}
	return out, nil
}

func appendTabs(m *model.Model, rows []Row, t model.TreeData, from model.NodeID, depth int, path map[model.NodeID]bool) ([]Row, error) {
	edges, err := liveChildren(m, from)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		n, err := m.Node(e.ToNode)
		if err != nil {
			return nil, err
		}
		row := Row{
			Tree:     t.ID,
			Edge:     e.ID,
			Depth:    depth,
			Label:    tabLabel(e, n),
			Expanded: t.Expanded(e.ID),
			Focused:  t.FocusedTab == e.ID,
			Starred:  !n.StarredAt.IsZero(),
		}
		if act := m.ActivityForNode(n.ID); act != 0 {
			row.Loading = m.Activity(act).Loading()
		}
		if path[n.ID] {
			rows = append(rows, row)
			continue
		}
		kids, err := liveChildren(m, n.ID)
		if err != nil {
			return nil, err
		}
		row.Kids = len(kids)
		rows = append(rows, row)
		if row.Expanded && row.Kids > 0 {
			path[n.ID] = true
			rows, err = appendTabs(m, rows, t, n.ID, depth+1, path)
			delete(path, n.ID)
			if err != nil {
				return nil, err
			}
		}
	}
	return rows, nil
}

func tabLabel(e model.EdgeData, n model.NodeData) string {
	switch {
	case e.Title != "":
		return e.Title
	case n.Title != "":
		return n.Title
	case n.URL != "":
		return n.URL
	default:
		return "New tab"
	}
}

// TreeModel is the scrollable list of rows.
type TreeModel struct {
	Rows   []Row
	Cursor int
	Offset int // scroll offset
	Width  int
	Height int
}

// SetRows replaces the rows, keeping the cursor on the same tab or tree if
// it's still visible.
func (m *TreeModel) SetRows(rows []Row) {
	prev := m.Selected()
	m.Rows = rows
	if prev != nil {
		for i, r := range rows {
			if r.Tree == prev.Tree && r.Edge == prev.Edge {
				m.Cursor = i
				m.clamp()
				return
			}
		}
	}
	m.Cursor = min(m.Cursor, len(rows)-1)
	m.clamp()
}

// Selected returns the row under the cursor, or nil.
func (m TreeModel) Selected() *Row {
	if m.Cursor >= 0 && m.Cursor < len(m.Rows) {
		return &m.Rows[m.Cursor]
	}
	return nil
}

func (m *TreeModel) visibleRows() int {
	return max(m.Height-2, 1) // account for padding
}

func (m *TreeModel) clamp() {
	m.Cursor = max(m.Cursor, 0)
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	if m.Cursor >= m.Offset+m.visibleRows() {
		m.Offset = m.Cursor - m.visibleRows() + 1
	}
}

// MoveUp moves the cursor up.
func (m *TreeModel) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
	m.clamp()
}

// MoveDown moves the cursor down.
func (m *TreeModel) MoveDown() {
	if m.Cursor < len(m.Rows)-1 {
		m.Cursor++
	}
	m.clamp()
}

// Parent moves the cursor to the row the selected one hangs from.
func (m *TreeModel) Parent() {
	sel := m.Selected()
	if sel == nil || sel.IsTree() {
		return
	}
	for i := m.Cursor - 1; i >= 0; i-- {
		r := m.Rows[i]
		if r.IsTree() || r.Depth < sel.Depth {
			m.Cursor = i
			m.clamp()
			return
		}
	}
}

// View renders the rows.
func (m TreeModel) View() string {
	if len(m.Rows) == 0 {
		return "No open trees. Press o to open one or u to reopen the last."
	}

	visibleRows := m.Height
	if visibleRows < 1 {
		visibleRows = 20
	}
	end := min(m.Offset+visibleRows, len(m.Rows))

	cursorStyle := lipgloss.NewStyle().Bold(true).Reverse(true)
	treeStyle := lipgloss.NewStyle().Bold(true)
	focusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // green
	loadStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	starStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("220")) // yellow

	var b strings.Builder
	for i := m.Offset; i < end; i++ {
		row := m.Rows[i]
		var line string
		if row.IsTree() {
			line = treeStyle.Render(fmt.Sprintf("%s (%d tabs)", row.Label, row.Kids))
		} else {
			icon := " "
			if row.Kids > 0 {
				icon = "▶"
				if row.Expanded {
					icon = "▼"
				}
			}
			var markers []string
			if row.Focused {
				markers = append(markers, focusStyle.Render("●"))
			}
			if row.Loading {
				markers = append(markers, loadStyle.Render("◌"))
			}
			if row.Starred {
				markers = append(markers, starStyle.Render("★"))
			}
			marker := ""
			if len(markers) > 0 {
				marker = strings.Join(markers, "") + " "
			}
			prefix := strings.Repeat("  ", row.Depth+1) + icon + " "

			// Truncate label to fit width
			label := row.Label
			maxLen := max(m.Width-len(prefix)-len(marker)-2, 10)
			if len(label) > maxLen {
				label = label[:maxLen-1] + "…"
			}
			line = prefix + marker + label
		}

		if i == m.Cursor {
			for len(line) < m.Width {
				line += " "
			}
			line = cursorStyle.Render(line)
		}
		b.WriteString(line)
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
