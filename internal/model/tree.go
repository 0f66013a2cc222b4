package model

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/lotas/tabforest/internal/applog"
)

// recentlyClosedWindow groups trees closed together, e.g. by quitting.
const recentlyClosedWindow = time.Minute

// TreeData is one window's view of the graph: the tabs are the edges below
// RootNode.
type TreeData struct {
	ID TreeID
	// Immutable
	RootNode NodeID
	// Mutable
	FocusedTab   EdgeID
	CreatedAt    time.Time
	ClosedAt     time.Time
	ExpandedTabs map[EdgeID]struct{}
	// Not stored
	Fullscreen bool
}

func (d TreeData) Exists() bool { return d.ID != 0 }

func (d TreeData) Closed() bool { return !d.ClosedAt.IsZero() }

// Expanded reports whether tab's children are shown.
func (d TreeData) Expanded(tab EdgeID) bool {
	_, ok := d.ExpandedTabs[tab]
	return ok
}

func (d TreeData) clone() TreeData {
	d.ExpandedTabs = maps.Clone(d.ExpandedTabs)
	if d.ExpandedTabs == nil {
		d.ExpandedTabs = make(map[EdgeID]struct{})
	}
	return d
}

// TreeURL is the URL of the hidden node whose children are a tree's tabs.
func TreeURL(id TreeID) string {
	return "tabforest:tree/" + strconv.FormatInt(int64(id), 10)
}

func (m *Model) loadTree(id TreeID) (*TreeData, error) {
	if id == 0 {
		return &TreeData{}, nil
	}
	if d, ok := m.trees[id]; ok {
		return d, nil
	}
	d := &TreeData{ExpandedTabs: make(map[EdgeID]struct{})}
	var created, closed int64
	var expanded string
	err := m.conn().QueryRow(
		"SELECT focused_tab, created_at, closed_at, expanded_tabs FROM trees WHERE id = ?", id,
	).Scan(&d.FocusedTab, &created, &closed, &expanded)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		d = &TreeData{}
	case err != nil:
		return nil, fmt.Errorf("load tree %d: %w", id, err)
	default:
		var tabs []EdgeID
		if err := json.Unmarshal([]byte(expanded), &tabs); err != nil {
			return nil, fmt.Errorf("decode expanded tabs of tree %d: %w", id, err)
		}
		for _, tab := range tabs {
			d.ExpandedTabs[tab] = struct{}{}
		}
		root, err := m.NodeWithURL(TreeURL(id))
		if err != nil {
			return nil, err
		}
		if root == 0 {
			return nil, fmt.Errorf("tree %d has no root node", id)
		}
		d.ID = id
		d.RootNode = root
		d.CreatedAt = fromUnixNano(created)
		d.ClosedAt = fromUnixNano(closed)
	}
	m.trees[id] = d
	return d, nil
}

// Tree returns a copy of the tree's current data.
func (m *Model) Tree(id TreeID) (TreeData, error) {
	d, err := m.loadTree(id)
	if err != nil {
		return TreeData{}, err
	}
	return d.clone(), nil
}

// OpenTrees returns the trees that haven't been closed, oldest first.
func (m *Model) OpenTrees() ([]TreeID, error) {
	ids, err := collectIDs[TreeID](m.conn(), "SELECT id FROM trees WHERE closed_at = 0 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query open trees: %w", err)
	}
	return ids, nil
}

// LastClosedTree returns the most recently closed tree, or 0.
func (m *Model) LastClosedTree() (TreeID, error) {
	ids, err := collectIDs[TreeID](m.conn(),
		"SELECT id FROM trees WHERE closed_at > 0 ORDER BY closed_at DESC, id DESC LIMIT 1")
	if err != nil {
		return 0, fmt.Errorf("query last closed tree: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

// TopTabs returns the tree's top-level tabs in order.
func (m *Model) TopTabs(id TreeID) ([]EdgeID, error) {
	d, err := m.existingTree(id)
	if err != nil {
		return nil, err
	}
	return m.EdgesFromNode(d.RootNode)
}

// FocusedNode returns the page shown by the tree's focused tab, or 0.
func (m *Model) FocusedNode(id TreeID) (NodeID, error) {
	d, err := m.loadTree(id)
	if err != nil || d.FocusedTab == 0 {
		return 0, err
	}
	e, err := m.loadEdge(d.FocusedTab)
	if err != nil {
		return 0, err
	}
	return e.ToNode, nil
}

func (m *Model) existingTree(id TreeID) (*TreeData, error) {
	d, err := m.loadTree(id)
	if err != nil {
		return nil, err
	}
	if !d.Exists() {
		return nil, notFound("tree", int64(id))
	}
	return d, nil
}

func (m *Model) saveTree(d *TreeData) (TreeID, error) {
	tabs := slices.Sorted(maps.Keys(d.ExpandedTabs))
	if tabs == nil {
		tabs = []EdgeID{}
	}
	expanded, err := json.Marshal(tabs)
	if err != nil {
		return 0, fmt.Errorf("encode expanded tabs: %w", err)
	}
	q := m.conn()
	if d.ID == 0 {
		res, err := q.Exec(
			"INSERT INTO trees (focused_tab, created_at, closed_at, expanded_tabs) VALUES (?, ?, ?, ?)",
			d.FocusedTab, unixNano(d.CreatedAt), unixNano(d.ClosedAt), string(expanded),
		)
		if err != nil {
			return 0, fmt.Errorf("insert tree: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("get tree id: %w", err)
		}
		d.ID = TreeID(id)
	} else {
		_, err := q.Exec(
			"UPDATE trees SET focused_tab = ?, closed_at = ?, expanded_tabs = ? WHERE id = ?",
			d.FocusedTab, unixNano(d.ClosedAt), string(expanded), d.ID,
		)
		if err != nil {
			return 0, fmt.Errorf("update tree %d: %w", d.ID, err)
		}
	}
	m.touchTree(d.ID)
	return d.ID, nil
}

func (w *Write) updateTree(id TreeID, fn func(d *TreeData)) error {
	w.check()
	cur, err := w.m.existingTree(id)
	if err != nil {
		return err
	}
	next := cur.clone()
	fn(&next)
	if _, err := w.m.saveTree(&next); err != nil {
		return err
	}
	w.m.trees[id] = &next
	return nil
}

// Global mutators

// CreateTree makes an empty open tree along with its root node.
func (w *Write) CreateTree() (TreeID, error) {
	w.check()
	d := &TreeData{CreatedAt: w.m.now(), ExpandedTabs: make(map[EdgeID]struct{})}
	id, err := w.m.saveTree(d)
	if err != nil {
		return 0, err
	}
	root, err := w.EnsureNodeWithURL(TreeURL(id))
	if err != nil {
		return 0, err
	}
	d.RootNode = root
	w.m.trees[id] = d
	applog.Info("tree.create", "tree", id, "root", root)
	return id, nil
}

// CreateDefaultTree makes a tree with a single blank tab.
func (w *Write) CreateDefaultTree() (TreeID, error) {
	id, err := w.CreateTree()
	if err != nil {
		return 0, err
	}
	root := w.m.trees[id].RootNode
	if _, err := w.MakeLastChild(root, 0, ""); err != nil {
		return 0, err
	}
	return id, nil
}

// OpenTreeForURLs makes a tree with one top-level tab per URL, in order.
func (w *Write) OpenTreeForURLs(urls []string) (TreeID, error) {
	id, err := w.CreateTree()
	if err != nil {
		return 0, err
	}
	root := w.m.trees[id].RootNode
	for _, url := range urls {
		node, err := w.EnsureNodeWithURL(url)
		if err != nil {
			return 0, err
		}
		if _, err := w.MakeLastChild(root, node, ""); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// UncloseLastClosedTree reopens the most recently closed tree, if any.
func (w *Write) UncloseLastClosedTree() (TreeID, error) {
	w.check()
	id, err := w.m.LastClosedTree()
	if err != nil || id == 0 {
		return 0, err
	}
	return id, w.UncloseTree(id)
}

// UncloseRecentlyClosedTrees reopens the last closed tree along with every
// tree closed within a minute before it.
func (w *Write) UncloseRecentlyClosedTrees() ([]TreeID, error) {
	w.check()
	last, err := w.m.LastClosedTree()
	if err != nil || last == 0 {
		return nil, err
	}
	d, err := w.m.loadTree(last)
	if err != nil {
		return nil, err
	}
	since := d.ClosedAt.Add(-recentlyClosedWindow)
	ids, err := collectIDs[TreeID](w.m.conn(),
		"SELECT id FROM trees WHERE closed_at >= ? ORDER BY closed_at ASC, id ASC", unixNano(since))
	if err != nil {
		return nil, fmt.Errorf("query recently closed trees: %w", err)
	}
	for _, id := range ids {
		if err := w.UncloseTree(id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Tree mutators

func (w *Write) CloseTree(id TreeID) error {
	applog.Info("tree.close", "tree", id)
	now := w.m.now()
	return w.updateTree(id, func(d *TreeData) { d.ClosedAt = now })
}

func (w *Write) UncloseTree(id TreeID) error {
	applog.Info("tree.unclose", "tree", id)
	return w.updateTree(id, func(d *TreeData) { d.ClosedAt = time.Time{} })
}

// SetFullscreen only changes the in-memory record.
func (w *Write) SetFullscreen(id TreeID, fullscreen bool) error {
	w.check()
	cur, err := w.m.existingTree(id)
	if err != nil {
		return err
	}
	next := cur.clone()
	next.Fullscreen = fullscreen
	w.m.trees[id] = &next
	w.m.touchTree(id)
	return nil
}

func (w *Write) SetFocusedTab(id TreeID, tab EdgeID) error {
	return w.updateTree(id, func(d *TreeData) { d.FocusedTab = tab })
}

// Tab mutators

// FocusTab focuses tab in the tree and gives it an activity if it has a page.
func (w *Write) FocusTab(id TreeID, tab EdgeID) error {
	applog.Debug("tree.focus_tab", "tree", id, "tab", tab)
	if err := w.SetFocusedTab(id, tab); err != nil {
		return err
	}
	return w.FocusActivityForTab(id, tab)
}

func (w *Write) NavigateTab(id TreeID, tab EdgeID, address string) error {
	applog.Debug("tree.navigate_tab", "tree", id, "tab", tab, "address", address)
	return w.NavigateActivityForTab(id, tab, address)
}

func (w *Write) ReloadTab(id TreeID, tab EdgeID) error {
	act, err := w.m.ActivityForEdge(tab)
	if err != nil || act == 0 {
		return err
	}
	return w.Reload(act)
}

func (w *Write) StopTab(id TreeID, tab EdgeID) error {
	act, err := w.m.ActivityForEdge(tab)
	if err != nil || act == 0 {
		return err
	}
	return w.FinishedLoading(act)
}

func (w *Write) ExpandTab(id TreeID, tab EdgeID) error {
	return w.updateTree(id, func(d *TreeData) { d.ExpandedTabs[tab] = struct{}{} })
}

func (w *Write) ContractTab(id TreeID, tab EdgeID) error {
	return w.updateTree(id, func(d *TreeData) { delete(d.ExpandedTabs, tab) })
}

// TrashTab trashes the tab. If it was focused, the tree loses focus and the
// tab's activity leaves the tree.
func (w *Write) TrashTab(id TreeID, tab EdgeID) error {
	applog.Debug("tree.trash_tab", "tree", id, "tab", tab)
	if err := w.Trash(tab); err != nil {
		return err
	}
	d, err := w.m.existingTree(id)
	if err != nil {
		return err
	}
	if d.FocusedTab != tab {
		return nil
	}
	if err := w.SetFocusedTab(id, 0); err != nil {
		return err
	}
	return w.UnfocusActivityForTab(id, tab)
}

func (w *Write) StarTab(id TreeID, tab EdgeID) error {
	return w.setTabStarredAt(tab, w.m.now())
}

func (w *Write) UnstarTab(id TreeID, tab EdgeID) error {
	return w.setTabStarredAt(tab, time.Time{})
}

func (w *Write) setTabStarredAt(tab EdgeID, t time.Time) error {
	e, err := w.m.existingEdge(tab)
	if err != nil {
		return err
	}
	if e.ToNode == 0 {
		return nil
	}
	return w.SetStarredAt(e.ToNode, t)
}

func (w *Write) MoveTabBefore(id TreeID, tab, next EdgeID) error {
	return w.MoveBefore(tab, next)
}

func (w *Write) MoveTabAfter(id TreeID, tab, prev EdgeID) error {
	return w.MoveAfter(tab, prev)
}

// MoveTabFirstChild moves tab under parent's page. A parent tab with no page
// can't have children, so nothing happens.
func (w *Write) MoveTabFirstChild(id TreeID, tab, parent EdgeID) error {
	p, err := w.m.existingEdge(parent)
	if err != nil || p.ToNode == 0 {
		return err
	}
	return w.MoveFirstChild(tab, p.ToNode)
}

func (w *Write) MoveTabLastChild(id TreeID, tab, parent EdgeID) error {
	p, err := w.m.existingEdge(parent)
	if err != nil || p.ToNode == 0 {
		return err
	}
	return w.MoveLastChild(tab, p.ToNode)
}

// NewChildTab adds a blank last child under tab, focuses it and expands tab
// so it's visible. It returns 0 if tab has no page.
func (w *Write) NewChildTab(id TreeID, tab EdgeID) (EdgeID, error) {
	e, err := w.m.existingEdge(tab)
	if err != nil || e.ToNode == 0 {
		return 0, err
	}
	child, err := w.MakeLastChild(e.ToNode, 0, "")
	if err != nil {
		return 0, err
	}
	if err := w.ExpandTab(id, tab); err != nil {
		return 0, err
	}
	if err := w.FocusTab(id, child); err != nil {
		return 0, err
	}
	return child, nil
}
