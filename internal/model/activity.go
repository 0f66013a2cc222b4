package model

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/lotas/tabforest/internal/applog"
)

// ActivityData is a live rendering binding. It is keyed by Node when it has
// one and by Edge otherwise; at most one Activity holds any Node, nodeless
// Edge or Tree at a time.
type ActivityData struct {
	ID             ActivityID
	Node           NodeID
	Edge           EdgeID
	Tree           TreeID
	LoadingAddress string
	LoadingAt      time.Time // zero when not loading
	Reloading      bool
}

func (d ActivityData) Exists() bool { return d.ID != 0 }

// Loading reports whether a load has been requested and not finished.
func (d ActivityData) Loading() bool { return !d.LoadingAt.IsZero() }

// activityRecord remembers which index slots the activity currently holds so
// save can tell what moved.
type activityRecord struct {
	data            ActivityData
	oldNode         NodeID
	oldNodelessEdge EdgeID
	oldTree         TreeID
}

type activityIndex struct {
	nextID         ActivityID
	byID           map[ActivityID]*activityRecord
	byNode         map[NodeID]ActivityID
	byNodelessEdge map[EdgeID]ActivityID
	byTree         map[TreeID]ActivityID
}

func newActivityIndex() *activityIndex {
	return &activityIndex{
		nextID:         1,
		byID:           make(map[ActivityID]*activityRecord),
		byNode:         make(map[NodeID]ActivityID),
		byNodelessEdge: make(map[EdgeID]ActivityID),
		byTree:         make(map[TreeID]ActivityID),
	}
}

func (a *activityIndex) clone() *activityIndex {
	c := &activityIndex{
		nextID:         a.nextID,
		byID:           make(map[ActivityID]*activityRecord, len(a.byID)),
		byNode:         maps.Clone(a.byNode),
		byNodelessEdge: maps.Clone(a.byNodelessEdge),
		byTree:         maps.Clone(a.byTree),
	}
	for id, r := range a.byID {
		rc := *r
		c.byID[id] = &rc
	}
	return c
}

// Accessors

// Activity returns a copy of the activity, or an empty record.
func (m *Model) Activity(id ActivityID) ActivityData {
	if r, ok := m.acts.byID[id]; ok {
		return r.data
	}
	return ActivityData{}
}

// Activities returns every live activity ID in ascending order.
func (m *Model) Activities() []ActivityID {
	return slices.Sorted(maps.Keys(m.acts.byID))
}

func (m *Model) ActivityForNode(node NodeID) ActivityID {
	if node == 0 {
		return 0
	}
	return m.acts.byNode[node]
}

func (m *Model) ActivityForTree(tree TreeID) ActivityID {
	if tree == 0 {
		return 0
	}
	return m.acts.byTree[tree]
}

// ActivityForEdge finds the activity by the edge's page, or by the edge
// itself if it has no page yet.
func (m *Model) ActivityForEdge(edge EdgeID) (ActivityID, error) {
	e, err := m.loadEdge(edge)
	if err != nil || !e.Exists() {
		return 0, err
	}
	if e.ToNode != 0 {
		return m.acts.byNode[e.ToNode], nil
	}
	return m.acts.byNodelessEdge[edge], nil
}

// Index maintenance

// journalActivities saves the index before the first activity change in a
// Write so Rollback can put it back.
func (m *Model) journalActivities() {
	if m.actsBefore == nil {
		m.actsBefore = m.acts.clone()
	}
}

func (w *Write) activity(id ActivityID) (*activityRecord, error) {
	w.check()
	r, ok := w.m.acts.byID[id]
	if !ok {
		return nil, notFound("activity", int64(id))
	}
	w.m.journalActivities()
	return r, nil
}

// claimTree gives tree to id. The previous holder stays alive without a tree.
func (m *Model) claimTree(id ActivityID, tree TreeID) {
	a := m.acts
	if prev, ok := a.byTree[tree]; ok && prev != id {
		if r, ok := a.byID[prev]; ok {
			r.data.Tree = 0
			r.oldTree = 0
			m.touchActivity(prev)
			applog.Debug("activity.unclaim_tree", "activity", prev, "tree", tree)
		}
	}
	a.byTree[tree] = id
}

func (w *Write) createActivity(d ActivityData) ActivityID {
	m := w.m
	m.journalActivities()
	a := m.acts
	id := a.nextID
	a.nextID++
	d.ID = id
	r := &activityRecord{data: d}
	if d.Node != 0 {
		if prev, ok := a.byNode[d.Node]; ok {
			panic(fmt.Sprintf("model: node %d already has activity %d", d.Node, prev))
		}
		a.byNode[d.Node] = id
		r.oldNode = d.Node
	} else if d.Edge != 0 {
		if prev, ok := a.byNodelessEdge[d.Edge]; ok {
			panic(fmt.Sprintf("model: edge %d already has activity %d", d.Edge, prev))
		}
		a.byNodelessEdge[d.Edge] = id
		r.oldNodelessEdge = d.Edge
	}
	if d.Tree != 0 {
		m.claimTree(id, d.Tree)
		r.oldTree = d.Tree
	}
	a.byID[id] = r
	m.touchActivity(id)
	applog.Debug("activity.create", "activity", id, "node", d.Node, "edge", d.Edge, "tree", d.Tree)
	return id
}

// saveActivity brings the indices in line with r.data.
func (m *Model) saveActivity(r *activityRecord) {
	a := m.acts
	id := r.data.ID
	if r.data.Node != r.oldNode {
		if r.oldNode != 0 {
			delete(a.byNode, r.oldNode)
		}
		if r.data.Node != 0 {
			if prev, ok := a.byNode[r.data.Node]; ok {
				panic(fmt.Sprintf("model: node %d already has activity %d", r.data.Node, prev))
			}
			a.byNode[r.data.Node] = id
		}
		r.oldNode = r.data.Node
	}
	var nodeless EdgeID
	if r.data.Node == 0 {
		nodeless = r.data.Edge
	}
	if nodeless != r.oldNodelessEdge {
		if r.oldNodelessEdge != 0 {
			delete(a.byNodelessEdge, r.oldNodelessEdge)
		}
		if nodeless != 0 {
			if prev, ok := a.byNodelessEdge[nodeless]; ok {
				panic(fmt.Sprintf("model: edge %d already has activity %d", nodeless, prev))
			}
			a.byNodelessEdge[nodeless] = id
		}
		r.oldNodelessEdge = nodeless
	}
	if r.data.Tree != r.oldTree {
		if r.oldTree != 0 && a.byTree[r.oldTree] == id {
			delete(a.byTree, r.oldTree)
		}
		if r.data.Tree != 0 {
			m.claimTree(id, r.data.Tree)
		}
		r.oldTree = r.data.Tree
	}
	m.touchActivity(id)
}

// DeleteActivity drops the activity and every index slot it holds.
func (w *Write) DeleteActivity(id ActivityID) error {
	r, err := w.activity(id)
	if err != nil {
		return err
	}
	a := w.m.acts
	if r.oldNode != 0 {
		delete(a.byNode, r.oldNode)
	}
	if r.oldNodelessEdge != 0 {
		delete(a.byNodelessEdge, r.oldNodelessEdge)
	}
	if r.oldTree != 0 && a.byTree[r.oldTree] == id {
		delete(a.byTree, r.oldTree)
	}
	delete(a.byID, id)
	w.m.touchActivity(id)
	applog.Debug("activity.delete", "activity", id)
	return nil
}

// Tab-driven mutators

// FocusActivityForTab binds tree to the activity showing tab's page,
// creating one that should start loading if there is none. A tab without a
// page gets no activity until it navigates.
func (w *Write) FocusActivityForTab(tree TreeID, edge EdgeID) error {
	w.check()
	e, err := w.m.existingEdge(edge)
	if err != nil {
		return err
	}
	if e.ToNode == 0 {
		return nil
	}
	if id := w.m.acts.byNode[e.ToNode]; id != 0 {
		r, err := w.activity(id)
		if err != nil {
			return err
		}
		r.data.Edge = edge
		r.data.Tree = tree
		w.m.saveActivity(r)
		return nil
	}
	w.createActivity(ActivityData{
		Node:      e.ToNode,
		Edge:      edge,
		Tree:      tree,
		LoadingAt: w.m.now(),
	})
	return nil
}

// UnfocusActivityForTab releases tree's claim on the tab's activity.
func (w *Write) UnfocusActivityForTab(tree TreeID, edge EdgeID) error {
	w.check()
	id, err := w.m.ActivityForEdge(edge)
	if err != nil || id == 0 {
		return err
	}
	r, err := w.activity(id)
	if err != nil {
		return err
	}
	if r.data.Tree != tree {
		return nil
	}
	r.data.Tree = 0
	w.m.saveActivity(r)
	return nil
}

// NavigateActivityForTab starts loading address in the tab's activity. The
// tree only claims the activity if it still has the tab focused, so a late
// navigate doesn't steal the tree back from another tab.
func (w *Write) NavigateActivityForTab(tree TreeID, edge EdgeID, address string) error {
	w.check()
	if address == "" {
		return errors.New("model: navigate to empty address")
	}
	e, err := w.m.existingEdge(edge)
	if err != nil {
		return err
	}
	t, err := w.m.existingTree(tree)
	if err != nil {
		return err
	}
	focused := t.FocusedTab == edge
	now := w.m.now()

	id, err := w.m.ActivityForEdge(edge)
	if err != nil {
		return err
	}
	if id != 0 {
		r, err := w.activity(id)
		if err != nil {
			return err
		}
		r.data.LoadingAddress = address
		r.data.LoadingAt = now
		if focused {
			r.data.Tree = tree
		}
		w.m.saveActivity(r)
		return nil
	}
	d := ActivityData{
		Node:           e.ToNode,
		Edge:           edge,
		LoadingAddress: address,
		LoadingAt:      now,
	}
	if focused {
		d.Tree = tree
	}
	w.createActivity(d)
	return nil
}

// Load lifecycle

func (w *Write) Reload(id ActivityID) error {
	r, err := w.activity(id)
	if err != nil {
		return err
	}
	r.data.Reloading = true
	r.data.LoadingAt = w.m.now()
	w.m.saveActivity(r)
	return nil
}

func (w *Write) StartedLoading(id ActivityID) error {
	r, err := w.activity(id)
	if err != nil {
		return err
	}
	r.data.LoadingAt = w.m.now()
	w.m.saveActivity(r)
	return nil
}

func (w *Write) FinishedLoading(id ActivityID) error {
	r, err := w.activity(id)
	if err != nil {
		return err
	}
	r.data.LoadingAddress = ""
	r.data.Reloading = false
	r.data.LoadingAt = time.Time{}
	w.m.saveActivity(r)
	return nil
}

// moveActivity rebinds the activity to node (and edge, which may be 0). An
// activity already on node is superseded and deleted. If the activity owns
// a tree, the tree's focus follows it to edge.
func (w *Write) moveActivity(id ActivityID, node NodeID, edge EdgeID) error {
	if prev := w.m.acts.byNode[node]; prev != 0 && prev != id {
		applog.Debug("activity.supersede", "activity", prev, "by", id, "node", node)
		if err := w.DeleteActivity(prev); err != nil {
			return err
		}
	}
	r, err := w.activity(id)
	if err != nil {
		return err
	}
	r.data.Node = node
	r.data.Edge = edge
	w.m.saveActivity(r)

	if r.data.Tree == 0 || edge == 0 {
		return nil
	}
	t, err := w.m.existingTree(r.data.Tree)
	if err != nil {
		return err
	}
	if t.FocusedTab == edge {
		return nil
	}
	return w.SetFocusedTab(r.data.Tree, edge)
}

// ReplaceNode points the activity's edge at the page for url.
func (w *Write) ReplaceNode(id ActivityID, url string) error {
	r, err := w.activity(id)
	if err != nil {
		return err
	}
	node, err := w.EnsureNodeWithURL(url)
	if err != nil {
		return err
	}
	edge := r.data.Edge
	if edge != 0 {
		if err := w.SetEdgeToNode(edge, node); err != nil {
			return err
		}
	}
	return w.moveActivity(id, node, edge)
}

// URLChanged follows the activity to url. A tab without a page adopts url.
// Otherwise, if url is the current page's parent or one of its children,
// the activity moves there; failing that, url becomes a new last child of
// the current page.
func (w *Write) URLChanged(id ActivityID, url string) error {
	if url == "" {
		return errors.New("model: url changed to empty url")
	}
	r, err := w.activity(id)
	if err != nil {
		return err
	}
	m := w.m
	if r.data.Node == 0 {
		if r.data.Edge == 0 {
			return fmt.Errorf("model: activity %d has neither node nor edge", id)
		}
		return w.ReplaceNode(id, url)
	}

	cur, err := m.loadNode(r.data.Node)
	if err != nil {
		return err
	}
	if cur.URL == url {
		return nil
	}

	if r.data.Edge != 0 {
		e, err := m.loadEdge(r.data.Edge)
		if err != nil {
			return err
		}
		parent, err := m.loadNode(e.FromNode)
		if err != nil {
			return err
		}
		if parent.Exists() && parent.URL == url {
			parentEdge, err := w.liveEdgeTo(e.FromNode)
			if err != nil {
				return err
			}
			return w.moveActivity(id, e.FromNode, parentEdge)
		}
	}

	children, err := m.EdgesFromNode(r.data.Node)
	if err != nil {
		return err
	}
	for _, child := range slices.Backward(children) {
		e, err := m.loadEdge(child)
		if err != nil {
			return err
		}
		if e.ToNode == 0 {
			continue
		}
		n, err := m.loadNode(e.ToNode)
		if err != nil {
			return err
		}
		if n.URL == url {
			return w.moveActivity(id, e.ToNode, child)
		}
	}

	node, err := w.EnsureNodeWithURL(url)
	if err != nil {
		return err
	}
	edge, err := w.MakeLastChild(r.data.Node, node, "")
	if err != nil {
		return err
	}
	return w.moveActivity(id, node, edge)
}

// liveEdgeTo returns the oldest untrashed edge leading to node, or 0.
func (w *Write) liveEdgeTo(node NodeID) (EdgeID, error) {
	edges, err := w.m.EdgesToNode(node)
	if err != nil {
		return 0, err
	}
	for _, id := range edges {
		e, err := w.m.loadEdge(id)
		if err != nil {
			return 0, err
		}
		if !e.Trashed() {
			return id, nil
		}
	}
	return 0, nil
}

func (w *Write) TitleChanged(id ActivityID, title string) error {
	r, err := w.activity(id)
	if err != nil || r.data.Node == 0 {
		return err
	}
	return w.SetTitle(r.data.Node, title)
}

func (w *Write) FaviconURLChanged(id ActivityID, url string) error {
	r, err := w.activity(id)
	if err != nil || r.data.Node == 0 {
		return err
	}
	return w.SetFaviconURL(r.data.Node, url)
}

// openPlace says where a page opened from an activity goes relative to it.
type openPlace int

const (
	openFirstChild openPlace = iota
	openLastChild
	openNextSibling
	openPrevSibling
)

// OpenFirstChild opens url as the first child of the activity's page. It
// returns the new edge, or 0 if the activity has no page yet.
func (w *Write) OpenFirstChild(id ActivityID, url, title string) (EdgeID, error) {
	return w.open(id, openFirstChild, url, title)
}

func (w *Write) OpenLastChild(id ActivityID, url, title string) (EdgeID, error) {
	return w.open(id, openLastChild, url, title)
}

// OpenNextSibling opens url right after the activity's tab. It returns 0 if
// the activity isn't attached to a tab.
func (w *Write) OpenNextSibling(id ActivityID, url, title string) (EdgeID, error) {
	return w.open(id, openNextSibling, url, title)
}

func (w *Write) OpenPrevSibling(id ActivityID, url, title string) (EdgeID, error) {
	return w.open(id, openPrevSibling, url, title)
}

func (w *Write) open(id ActivityID, place openPlace, url, title string) (EdgeID, error) {
	if url == "" {
		return 0, errors.New("model: open empty url")
	}
	r, err := w.activity(id)
	if err != nil {
		return 0, err
	}
	child := place == openFirstChild || place == openLastChild
	if child && r.data.Node == 0 || !child && r.data.Edge == 0 {
		return 0, nil
	}
	node, err := w.EnsureNodeWithURL(url)
	if err != nil {
		return 0, err
	}
	var edge EdgeID
	switch place {
	case openFirstChild:
		edge, err = w.MakeFirstChild(r.data.Node, node, title)
	case openLastChild:
		edge, err = w.MakeLastChild(r.data.Node, node, title)
	case openNextSibling:
		edge, err = w.MakeNextSibling(r.data.Edge, node, title)
	case openPrevSibling:
		edge, err = w.MakePrevSibling(r.data.Edge, node, title)
	}
	if err != nil {
		return 0, err
	}
	applog.Debug("activity.open", "activity", id, "edge", edge, "url", url)
	return edge, nil
}
