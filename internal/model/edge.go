package model

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lotas/tabforest/internal/applog"
	"github.com/lotas/tabforest/internal/bifractor"
)

// EdgeData is a positioned parent-to-child link. Siblings under one
// FromNode are ordered by Position.
type EdgeData struct {
	ID EdgeID
	// Immutable
	OpenerNode NodeID
	// Mutable
	FromNode  NodeID
	ToNode    NodeID // 0 for a tab that hasn't loaded anything yet
	Position  bifractor.Bifractor
	Title     string
	CreatedAt time.Time
	TrashedAt time.Time
}

func (d EdgeData) Exists() bool { return d.ID != 0 }

// Trashed reports whether the edge has been moved to the trash.
func (d EdgeData) Trashed() bool { return !d.TrashedAt.IsZero() }

// Fixed positions for a parent with no children yet. New first children sit
// high so there is room above them and vice versa.
var (
	loneFirstChild = bifractor.FromFraction(30 / 32.0)
	loneLastChild  = bifractor.FromFraction(2 / 32.0)
)

func (m *Model) loadEdge(id EdgeID) (*EdgeData, error) {
	if id == 0 {
		return &EdgeData{}, nil
	}
	if d, ok := m.edges[id]; ok {
		return d, nil
	}
	d := &EdgeData{}
	var created, trashed int64
	err := m.conn().QueryRow(
		`SELECT opener_node, from_node, to_node, position, title, created_at, trashed_at
		 FROM edges WHERE id = ?`, id,
	).Scan(&d.OpenerNode, &d.FromNode, &d.ToNode, &d.Position, &d.Title, &created, &trashed)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		d = &EdgeData{}
	case err != nil:
		return nil, fmt.Errorf("load edge %d: %w", id, err)
	default:
		d.ID = id
		d.CreatedAt = fromUnixNano(created)
		d.TrashedAt = fromUnixNano(trashed)
	}
	m.edges[id] = d
	return d, nil
}

// Edge returns a copy of the edge's current data.
func (m *Model) Edge(id EdgeID) (EdgeData, error) {
	d, err := m.loadEdge(id)
	if err != nil {
		return EdgeData{}, err
	}
	return *d, nil
}

// EdgesFromNode returns the children of a node in position order, trashed
// ones included.
func (m *Model) EdgesFromNode(from NodeID) ([]EdgeID, error) {
	ids, err := collectIDs[EdgeID](m.conn(),
		"SELECT id FROM edges WHERE from_node = ? ORDER BY position ASC", from)
	if err != nil {
		return nil, fmt.Errorf("query edges from node %d: %w", from, err)
	}
	return ids, nil
}

// EdgesToNode returns every edge pointing at a node, oldest first.
func (m *Model) EdgesToNode(to NodeID) ([]EdgeID, error) {
	ids, err := collectIDs[EdgeID](m.conn(),
		"SELECT id FROM edges WHERE to_node = ? ORDER BY id ASC", to)
	if err != nil {
		return nil, fmt.Errorf("query edges to node %d: %w", to, err)
	}
	return ids, nil
}

// LastTrashedEdge returns the most recently trashed edge, or 0.
func (m *Model) LastTrashedEdge() (EdgeID, error) {
	ids, err := collectIDs[EdgeID](m.conn(),
		"SELECT id FROM edges WHERE trashed_at > 0 ORDER BY trashed_at DESC, id DESC LIMIT 1")
	if err != nil {
		return 0, fmt.Errorf("query last trashed edge: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

// neighborPosition returns the nearest sibling position after (or before)
// pos under parent. Positions are read from the database because cached
// siblings may not all be loaded.
func (m *Model) neighborPosition(parent NodeID, pos bifractor.Bifractor, after bool) (bifractor.Bifractor, bool, error) {
	query := "SELECT position FROM edges WHERE from_node = ? AND position > ? ORDER BY position ASC LIMIT 1"
	if !after {
		query = "SELECT position FROM edges WHERE from_node = ? AND position < ? ORDER BY position DESC LIMIT 1"
	}
	var next bifractor.Bifractor
	err := m.conn().QueryRow(query, parent, pos).Scan(&next)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return bifractor.Bifractor{}, false, nil
	case err != nil:
		return bifractor.Bifractor{}, false, fmt.Errorf("query sibling position: %w", err)
	}
	return next, true, nil
}

func (m *Model) firstPosition(parent NodeID) (bifractor.Bifractor, error) {
	first, ok, err := m.neighborPosition(parent, bifractor.Zero(), true)
	if err != nil || !ok {
		return loneFirstChild, err
	}
	return bifractor.Bisect(bifractor.Zero(), first, 31/32.0), nil
}

func (m *Model) lastPosition(parent NodeID) (bifractor.Bifractor, error) {
	last, ok, err := m.neighborPosition(parent, bifractor.One(), false)
	if err != nil || !ok {
		return loneLastChild, err
	}
	return bifractor.Bisect(last, bifractor.One(), 1/32.0), nil
}

func (m *Model) positionAfter(target *EdgeData) (bifractor.Bifractor, error) {
	next, ok, err := m.neighborPosition(target.FromNode, target.Position, true)
	if err != nil {
		return bifractor.Bifractor{}, err
	}
	if !ok {
		next = bifractor.One()
	}
	return bifractor.Bisect(target.Position, next, 8/32.0), nil
}

func (m *Model) positionBefore(target *EdgeData) (bifractor.Bifractor, error) {
	prev, ok, err := m.neighborPosition(target.FromNode, target.Position, false)
	if err != nil {
		return bifractor.Bifractor{}, err
	}
	if !ok {
		prev = bifractor.Zero()
	}
	return bifractor.Bisect(prev, target.Position, 24/32.0), nil
}

func (m *Model) saveEdge(d *EdgeData) (EdgeID, error) {
	q := m.conn()
	if d.ID == 0 {
		res, err := q.Exec(
			`INSERT INTO edges (opener_node, from_node, to_node, position, title, created_at, trashed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.OpenerNode, d.FromNode, d.ToNode, d.Position, d.Title, unixNano(d.CreatedAt), unixNano(d.TrashedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("insert edge: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("get edge id: %w", err)
		}
		d.ID = EdgeID(id)
	} else {
		_, err := q.Exec(
			`UPDATE edges SET from_node = ?, to_node = ?, position = ?, title = ?, trashed_at = ?
			 WHERE id = ?`,
			d.FromNode, d.ToNode, d.Position, d.Title, unixNano(d.TrashedAt), d.ID,
		)
		if err != nil {
			return 0, fmt.Errorf("update edge %d: %w", d.ID, err)
		}
	}
	m.touchEdge(d.ID)
	return d.ID, nil
}

func (w *Write) createEdge(d *EdgeData) (EdgeID, error) {
	d.CreatedAt = w.m.now()
	id, err := w.m.saveEdge(d)
	if err != nil {
		return 0, err
	}
	w.m.edges[id] = d
	applog.Debug("edge.create", "edge", id, "from", d.FromNode, "to", d.ToNode, "position", d.Position)
	return id, nil
}

// existingEdge loads an edge and fails with ErrNotFound if it isn't stored.
func (m *Model) existingEdge(id EdgeID) (*EdgeData, error) {
	d, err := m.loadEdge(id)
	if err != nil {
		return nil, err
	}
	if !d.Exists() {
		return nil, notFound("edge", int64(id))
	}
	return d, nil
}

// MakeFirstChild links to (which may be 0) as the first child of parent.
func (w *Write) MakeFirstChild(parent, to NodeID, title string) (EdgeID, error) {
	w.check()
	pos, err := w.m.firstPosition(parent)
	if err != nil {
		return 0, err
	}
	return w.createEdge(&EdgeData{
		OpenerNode: parent, FromNode: parent, ToNode: to, Position: pos, Title: title,
	})
}

// MakeLastChild links to (which may be 0) as the last child of parent.
func (w *Write) MakeLastChild(parent, to NodeID, title string) (EdgeID, error) {
	w.check()
	pos, err := w.m.lastPosition(parent)
	if err != nil {
		return 0, err
	}
	return w.createEdge(&EdgeData{
		OpenerNode: parent, FromNode: parent, ToNode: to, Position: pos, Title: title,
	})
}

// MakeNextSibling links to right after target, under target's parent. The
// page shown by target is recorded as the opener.
func (w *Write) MakeNextSibling(target EdgeID, to NodeID, title string) (EdgeID, error) {
	w.check()
	t, err := w.m.existingEdge(target)
	if err != nil {
		return 0, err
	}
	pos, err := w.m.positionAfter(t)
	if err != nil {
		return 0, err
	}
	return w.createEdge(&EdgeData{
		OpenerNode: t.ToNode, FromNode: t.FromNode, ToNode: to, Position: pos, Title: title,
	})
}

// MakePrevSibling links to right before target.
func (w *Write) MakePrevSibling(target EdgeID, to NodeID, title string) (EdgeID, error) {
	w.check()
	t, err := w.m.existingEdge(target)
	if err != nil {
		return 0, err
	}
	pos, err := w.m.positionBefore(t)
	if err != nil {
		return 0, err
	}
	return w.createEdge(&EdgeData{
		OpenerNode: t.ToNode, FromNode: t.FromNode, ToNode: to, Position: pos, Title: title,
	})
}

// updateEdge applies fn to a copy of the edge and swaps it into the cache
// once it's saved.
func (w *Write) updateEdge(id EdgeID, fn func(d *EdgeData) error) error {
	w.check()
	cur, err := w.m.existingEdge(id)
	if err != nil {
		return err
	}
	next := *cur
	if err := fn(&next); err != nil {
		return err
	}
	if _, err := w.m.saveEdge(&next); err != nil {
		return err
	}
	w.m.edges[id] = &next
	return nil
}

// MoveFirstChild reparents the edge as parent's first child.
func (w *Write) MoveFirstChild(id EdgeID, parent NodeID) error {
	applog.Debug("edge.move_first_child", "edge", id, "parent", parent)
	return w.updateEdge(id, func(d *EdgeData) (err error) {
		d.FromNode = parent
		d.Position, err = w.m.firstPosition(parent)
		return err
	})
}

// MoveLastChild reparents the edge as parent's last child.
func (w *Write) MoveLastChild(id EdgeID, parent NodeID) error {
	applog.Debug("edge.move_last_child", "edge", id, "parent", parent)
	return w.updateEdge(id, func(d *EdgeData) (err error) {
		d.FromNode = parent
		d.Position, err = w.m.lastPosition(parent)
		return err
	})
}

// MoveAfter places the edge right after prev, under prev's parent.
func (w *Write) MoveAfter(id, prev EdgeID) error {
	applog.Debug("edge.move_after", "edge", id, "prev", prev)
	t, err := w.m.existingEdge(prev)
	if err != nil {
		return err
	}
	return w.updateEdge(id, func(d *EdgeData) (err error) {
		d.FromNode = t.FromNode
		d.Position, err = w.m.positionAfter(t)
		return err
	})
}

// MoveBefore places the edge right before next, under next's parent.
func (w *Write) MoveBefore(id, next EdgeID) error {
	applog.Debug("edge.move_before", "edge", id, "next", next)
	t, err := w.m.existingEdge(next)
	if err != nil {
		return err
	}
	return w.updateEdge(id, func(d *EdgeData) (err error) {
		d.FromNode = t.FromNode
		d.Position, err = w.m.positionBefore(t)
		return err
	})
}

// SetEdgeToNode points the edge at a different page.
func (w *Write) SetEdgeToNode(id EdgeID, to NodeID) error {
	applog.Debug("edge.set_to_node", "edge", id, "to", to)
	return w.updateEdge(id, func(d *EdgeData) error {
		d.ToNode = to
		return nil
	})
}

func (w *Write) SetEdgeTitle(id EdgeID, title string) error {
	return w.updateEdge(id, func(d *EdgeData) error {
		d.Title = title
		return nil
	})
}

// Trash stamps the edge's trashed time. Trashed edges keep their position.
func (w *Write) Trash(id EdgeID) error {
	applog.Debug("edge.trash", "edge", id)
	now := w.m.now()
	return w.updateEdge(id, func(d *EdgeData) error {
		d.TrashedAt = now
		return nil
	})
}

func (w *Write) Untrash(id EdgeID) error {
	applog.Debug("edge.untrash", "edge", id)
	return w.updateEdge(id, func(d *EdgeData) error {
		d.TrashedAt = time.Time{}
		return nil
	})
}

// TouchEdge sends the edge to observers without changing it.
func (w *Write) TouchEdge(id EdgeID) {
	w.check()
	w.m.touchEdge(id)
}
