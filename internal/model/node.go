package model

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lotas/tabforest/internal/applog"
)

// NodeState is the transient load state of a page. It is never persisted.
type NodeState int

const (
	Unloaded NodeState = iota
	Loading
	Loaded
)

func (s NodeState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// NodeData is a web page identity, deduplicated by URL.
type NodeData struct {
	ID NodeID
	// Immutable
	URL string
	// Mutable
	FaviconURL string
	Title      string
	VisitedAt  time.Time
	StarredAt  time.Time
	Group      int64 // reserved
	// Not stored
	State NodeState
}

// Exists reports whether the record refers to a stored node.
func (d NodeData) Exists() bool { return d.ID != 0 }

func (m *Model) loadNode(id NodeID) (*NodeData, error) {
	if id == 0 {
		return &NodeData{}, nil
	}
	if d, ok := m.nodes[id]; ok {
		return d, nil
	}
	d := &NodeData{}
	var visited, starred int64
	err := m.conn().QueryRow(
		"SELECT url, favicon_url, title, visited_at, starred_at, group_id FROM nodes WHERE id = ?", id,
	).Scan(&d.URL, &d.FaviconURL, &d.Title, &visited, &starred, &d.Group)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		d = &NodeData{}
	case err != nil:
		return nil, fmt.Errorf("load node %d: %w", id, err)
	default:
		d.ID = id
		d.VisitedAt = fromUnixNano(visited)
		d.StarredAt = fromUnixNano(starred)
	}
	m.nodes[id] = d
	return d, nil
}

// Node returns a copy of the node's current data. A missing node yields a
// record whose Exists is false.
func (m *Model) Node(id NodeID) (NodeData, error) {
	d, err := m.loadNode(id)
	if err != nil {
		return NodeData{}, err
	}
	return *d, nil
}

// NodeWithURL returns the node for url, or 0 if there is none.
func (m *Model) NodeWithURL(url string) (NodeID, error) {
	ids, err := collectIDs[NodeID](m.conn(),
		"SELECT id FROM nodes WHERE url_hash = ? AND url = ? ORDER BY id", urlHash(url), url)
	if err != nil {
		return 0, fmt.Errorf("find node with url: %w", err)
	}
	if len(ids) > 1 {
		panic(fmt.Sprintf("model: %d nodes share url %q", len(ids), url))
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

// UntitledNodes returns up to limit http(s) nodes that have no title yet.
func (m *Model) UntitledNodes(limit int) ([]NodeID, error) {
	ids, err := collectIDs[NodeID](m.conn(),
		`SELECT id FROM nodes WHERE title = '' AND (url LIKE 'http://%' OR url LIKE 'https://%')
		 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query untitled nodes: %w", err)
	}
	return ids, nil
}

// ViewingTree returns the tree whose activity is currently showing node.
func (m *Model) ViewingTree(node NodeID) TreeID {
	if id := m.ActivityForNode(node); id != 0 {
		return m.acts.byID[id].data.Tree
	}
	return 0
}

// saveNode writes d and returns its ID, allocating one if d.ID is 0.
func (m *Model) saveNode(d *NodeData) (NodeID, error) {
	q := m.conn()
	if d.ID == 0 {
		res, err := q.Exec(
			`INSERT INTO nodes (url_hash, url, favicon_url, title, visited_at, starred_at, group_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			urlHash(d.URL), d.URL, d.FaviconURL, d.Title, unixNano(d.VisitedAt), unixNano(d.StarredAt), d.Group,
		)
		if err != nil {
			return 0, fmt.Errorf("insert node: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("get node id: %w", err)
		}
		d.ID = NodeID(id)
	} else {
		_, err := q.Exec(
			`UPDATE nodes SET favicon_url = ?, title = ?, visited_at = ?, starred_at = ?, group_id = ?
			 WHERE id = ?`,
			d.FaviconURL, d.Title, unixNano(d.VisitedAt), unixNano(d.StarredAt), d.Group, d.ID,
		)
		if err != nil {
			return 0, fmt.Errorf("update node %d: %w", d.ID, err)
		}
	}
	m.touchNode(d.ID)
	return d.ID, nil
}

// EnsureNodeWithURL returns the node for url, creating it if needed.
func (w *Write) EnsureNodeWithURL(url string) (NodeID, error) {
	w.check()
	if url == "" {
		return 0, errors.New("model: node url must not be empty")
	}
	m := w.m
	id, err := m.NodeWithURL(url)
	if err != nil || id != 0 {
		return id, err
	}
	d := &NodeData{URL: url}
	id, err = m.saveNode(d)
	if err != nil {
		return 0, err
	}
	m.nodes[id] = d
	applog.Debug("node.create", "node", id, "url", url)
	return id, nil
}

// updateNode applies fn to a copy of the node, saves it, then swaps the copy
// into the cache so readers never see a half-applied change.
func (w *Write) updateNode(id NodeID, fn func(d *NodeData)) error {
	w.check()
	cur, err := w.m.loadNode(id)
	if err != nil {
		return err
	}
	if !cur.Exists() {
		return notFound("node", int64(id))
	}
	next := *cur
	fn(&next)
	if _, err := w.m.saveNode(&next); err != nil {
		return err
	}
	w.m.nodes[id] = &next
	return nil
}

func (w *Write) SetTitle(id NodeID, title string) error {
	applog.Debug("node.set_title", "node", id, "title", title)
	return w.updateNode(id, func(d *NodeData) { d.Title = title })
}

func (w *Write) SetFaviconURL(id NodeID, url string) error {
	applog.Debug("node.set_favicon_url", "node", id, "url", url)
	return w.updateNode(id, func(d *NodeData) { d.FaviconURL = url })
}

// SetVisited stamps the node's visited time with now.
func (w *Write) SetVisited(id NodeID) error {
	now := w.m.now()
	return w.updateNode(id, func(d *NodeData) { d.VisitedAt = now })
}

// SetStarredAt stars (non-zero t) or unstars (zero t) a node.
func (w *Write) SetStarredAt(id NodeID, t time.Time) error {
	return w.updateNode(id, func(d *NodeData) { d.StarredAt = t })
}

// SetNodeState changes the transient state; nothing is written to the
// database but observers still see the node.
func (w *Write) SetNodeState(id NodeID, state NodeState) error {
	w.check()
	d, err := w.m.loadNode(id)
	if err != nil {
		return err
	}
	if !d.Exists() {
		return notFound("node", int64(id))
	}
	next := *d
	next.State = state
	w.m.nodes[id] = &next
	w.m.touchNode(id)
	return nil
}

// TouchNode sends the node to observers without changing it.
func (w *Write) TouchNode(id NodeID) {
	w.check()
	w.m.touchNode(id)
}
