// Package tui is a terminal inspector for the tab forest. It owns the Model
// while it runs: every read and write happens inside Update, and the view is
// rebuilt whenever an observer sees a committed Write.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabforest/internal/applog"
	"github.com/lotas/tabforest/internal/firefox"
	"github.com/lotas/tabforest/internal/model"
)

// TreeWidthPct is the percentage of terminal width used for the tree pane.
const TreeWidthPct = 60

type keyMap struct {
	Up, Down, Focus, Expand, Contract key.Binding
	NewChild, Trash, Star             key.Binding
	NewTree, CloseTree, Unclose       key.Binding
	Import, Quit                      key.Binding
}

var keys = keyMap{
	Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Focus:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "focus")),
	Expand:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("l", "expand")),
	Contract:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("h", "contract")),
	NewChild:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new child")),
	Trash:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "trash")),
	Star:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "star")),
	NewTree:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "new tree")),
	CloseTree: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "close tree")),
	Unclose:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "reopen")),
	Import:    key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "import")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Focus, k.Expand, k.Contract, k.NewChild,
		k.Trash, k.Star, k.NewTree, k.CloseTree, k.Unclose, k.Import, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Focus, k.Expand, k.Contract},
		{k.NewChild, k.Trash, k.Star},
		{k.NewTree, k.CloseTree, k.Unclose, k.Import, k.Quit},
	}
}

// --- Messages ---

type profilesLoadedMsg struct {
	previews []firefox.Preview
	err      error
}

type sessionLoadedMsg struct {
	session *firefox.Session
	err     error
}

// --- Command helpers ---

func loadProfiles(discover func() ([]firefox.Profile, error)) tea.Cmd {
	return func() tea.Msg {
		profiles, err := discover()
		if err != nil {
			return profilesLoadedMsg{err: err}
		}
		previews := make([]firefox.Preview, len(profiles))
		for i, p := range profiles {
			previews[i] = firefox.PreviewProfile(p)
		}
		return profilesLoadedMsg{previews: previews}
	}
}

func loadSession(profile firefox.Profile) tea.Cmd {
	return func() tea.Msg {
		s, err := firefox.ReadSession(profile.Session)
		return sessionLoadedMsg{session: s, err: err}
	}
}

// pending collects updates delivered by the observer until Update drains
// them. It's shared by every copy of Model.
type pending struct {
	updates []model.Update
}

// --- Model ---

type Model struct {
	// Data
	m       *model.Model
	changes *pending
	waves   int

	// UI state
	tree       TreeModel
	detail     DetailModel
	picker     ProfilePicker
	showPicker bool
	help       help.Model
	status     string
	err        error
	width      int
	height     int

	discover  func() ([]firefox.Profile, error)
	unobserve func()
}

// NewModel builds an inspector over m. Call Close when the program exits.
func NewModel(m *model.Model) (Model, error) {
	changes := &pending{}
	unobserve := m.Observe(model.ObserverFunc(func(u model.Update) {
		changes.updates = append(changes.updates, u)
	}))
	rows, err := BuildRows(m)
	if err != nil {
		unobserve()
		return Model{}, err
	}
	im := Model{
		m:         m,
		changes:   changes,
		help:      help.New(),
		discover:  firefox.DiscoverProfiles,
		unobserve: unobserve,
	}
	im.tree.SetRows(rows)
	return im, nil
}

// Close stops observing the Model.
func (m Model) Close() {
	m.unobserve()
}

func (m Model) Init() tea.Cmd {
	return nil
}

// refresh rebuilds the rows if any Write committed since the last call.
func (m *Model) refresh() {
	if len(m.changes.updates) == 0 {
		return
	}
	m.waves += len(m.changes.updates)
	m.changes.updates = nil
	rows, err := BuildRows(m.m)
	if err != nil {
		m.err = err
		return
	}
	m.tree.SetRows(rows)
}

// write runs fn in a Write and reports its error in the status line.
func (m *Model) write(action string, fn func(w *model.Write) error) {
	if err := m.m.Write(fn); err != nil {
		applog.Error("tui."+action, err)
		m.status = fmt.Sprintf("%s failed: %v", action, err)
	} else {
		m.status = ""
	}
	m.refresh()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m.refresh()

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		treeWidth := m.width * TreeWidthPct / 100
		paneHeight := m.height - 5 // top bar + bottom bar
		m.tree.Width = treeWidth
		m.tree.Height = paneHeight
		m.detail.Width = m.width - treeWidth - 3 // borders
		m.detail.Height = paneHeight
		m.picker.Width = m.width
		m.picker.Height = m.height
		m.help.Width = m.width
		return m, nil

	case tea.KeyMsg:
		if m.showPicker {
			switch msg.String() {
			case "up", "k":
				m.picker.MoveUp()
			case "down", "j":
				m.picker.MoveDown()
			case "enter":
				pv, ok := m.picker.Selected()
				if !ok {
					return m, nil
				}
				m.showPicker = false
				m.status = "Reading session..."
				return m, loadSession(pv.Profile)
			case "esc":
				m.showPicker = false
			case "q", "ctrl+c":
				return m, tea.Quit
			}
			return m, nil
		}
		return m.handleKey(msg)

	case profilesLoadedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("No Firefox profiles: %v", msg.err)
			return m, nil
		}
		if len(msg.previews) == 0 {
			m.status = "No Firefox profile has a session to import."
			return m, nil
		}
		m.picker = NewProfilePicker(msg.previews)
		m.picker.Width = m.width
		m.picker.Height = m.height
		m.showPicker = true
		return m, nil

	case sessionLoadedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Import failed: %v", msg.err)
			return m, nil
		}
		var res firefox.Result
		m.write("import", func(w *model.Write) (err error) {
			res, err = firefox.Import(w, msg.session)
			return err
		})
		if m.status == "" {
			m.status = fmt.Sprintf("Imported %d windows (%d tabs)", len(res.Trees), res.Tabs)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	row := m.tree.Selected()
	onTab := row != nil && !row.IsTree()

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		m.tree.MoveUp()
	case key.Matches(msg, keys.Down):
		m.tree.MoveDown()
	case key.Matches(msg, keys.Focus):
		if onTab {
			m.write("focus", func(w *model.Write) error { return w.FocusTab(row.Tree, row.Edge) })
		}
	case key.Matches(msg, keys.Expand):
		if onTab && row.Kids > 0 && !row.Expanded {
			m.write("expand", func(w *model.Write) error { return w.ExpandTab(row.Tree, row.Edge) })
		}
	case key.Matches(msg, keys.Contract):
		if onTab && row.Expanded {
			m.write("contract", func(w *model.Write) error { return w.ContractTab(row.Tree, row.Edge) })
		} else {
			m.tree.Parent()
		}
	case key.Matches(msg, keys.NewChild):
		if onTab {
			m.write("new_child", func(w *model.Write) error {
				_, err := w.NewChildTab(row.Tree, row.Edge)
				return err
			})
		}
	case key.Matches(msg, keys.Trash):
		if onTab {
			m.write("trash", func(w *model.Write) error { return w.TrashTab(row.Tree, row.Edge) })
		}
	case key.Matches(msg, keys.Star):
		if onTab {
			m.write("star", func(w *model.Write) error {
				if row.Starred {
					return w.UnstarTab(row.Tree, row.Edge)
				}
				return w.StarTab(row.Tree, row.Edge)
			})
		}
	case key.Matches(msg, keys.NewTree):
		m.write("new_tree", func(w *model.Write) error {
			_, err := w.CreateDefaultTree()
			return err
		})
	case key.Matches(msg, keys.CloseTree):
		if row != nil {
			m.write("close_tree", func(w *model.Write) error { return w.CloseTree(row.Tree) })
		}
	case key.Matches(msg, keys.Unclose):
		var id model.TreeID
		m.write("unclose", func(w *model.Write) (err error) {
			id, err = w.UncloseLastClosedTree()
			return err
		})
		if m.status == "" && id == 0 {
			m.status = "Nothing to reopen."
		}
	case key.Matches(msg, keys.Import):
		return m, loadProfiles(m.discover)
	}
	return m, nil
}

func (m Model) detailView() string {
	row := m.tree.Selected()
	if row == nil {
		return ""
	}
	if row.IsTree() {
		t, err := m.m.Tree(row.Tree)
		if err != nil {
			return err.Error()
		}
		return m.detail.ViewTree(t, row.Kids)
	}
	e, err := m.m.Edge(row.Edge)
	if err != nil {
		return err.Error()
	}
	n, err := m.m.Node(e.ToNode)
	if err != nil {
		return err.Error()
	}
	return m.detail.ViewTab(e, n, m.m.Activity(m.m.ActivityForNode(n.ID)))
}

func (m Model) View() string {
	if m.showPicker {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.picker.View())
	}

	if m.err != nil {
		return fmt.Sprintf("\n  Error: %v\n\n  Press 'q' to quit.\n", m.err)
	}

	// Top bar
	topBarStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	trees := 0
	for _, r := range m.tree.Rows {
		if r.IsTree() {
			trees++
		}
	}
	top := fmt.Sprintf("tabforest · %d open trees · %d changes seen", trees, m.waves)
	if m.status != "" {
		top += " · " + m.status
	}
	topBar := topBarStyle.Render(top)

	// Panes
	treeBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Width(m.tree.Width).
		Height(m.tree.Height)

	detailBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.detail.Width).
		Height(m.detail.Height)

	left := treeBorder.Render(m.tree.View())
	right := detailBorder.Render(m.detailView())
	panes := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	// Bottom bar
	bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	bottomBar := bottomBarStyle.Render(m.help.View(keys))

	return lipgloss.JoinVertical(lipgloss.Left, topBar, panes, bottomBar)
}

// Run starts the inspector on the terminal and blocks until it quits.
func Run(m *model.Model) error {
	im, err := NewModel(m)
	if err != nil {
		return err
	}
	defer im.Close()
	_, err = tea.NewProgram(im, tea.WithAltScreen()).Run()
	return err
}
