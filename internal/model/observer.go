package model

import (
	"maps"
	"slices"
)

// Update is the set of IDs touched by one committed Write. Observers share
// the same Update value and must not modify it.
type Update struct {
	Nodes      map[NodeID]struct{}
	Edges      map[EdgeID]struct{}
	Trees      map[TreeID]struct{}
	Activities map[ActivityID]struct{}
}

func newUpdate() Update {
	return Update{
		Nodes:      make(map[NodeID]struct{}),
		Edges:      make(map[EdgeID]struct{}),
		Trees:      make(map[TreeID]struct{}),
		Activities: make(map[ActivityID]struct{}),
	}
}

// Empty reports whether nothing was touched.
func (u Update) Empty() bool {
	return len(u.Nodes) == 0 && len(u.Edges) == 0 && len(u.Trees) == 0 && len(u.Activities) == 0
}

func (u Update) HasNode(id NodeID) bool {
	_, ok := u.Nodes[id]
	return ok
}

func (u Update) HasEdge(id EdgeID) bool {
	_, ok := u.Edges[id]
	return ok
}

func (u Update) HasTree(id TreeID) bool {
	_, ok := u.Trees[id]
	return ok
}

func (u Update) HasActivity(id ActivityID) bool {
	_, ok := u.Activities[id]
	return ok
}

// Sorted ID lists, for stable output.
func (u Update) NodeIDs() []NodeID { return slices.Sorted(maps.Keys(u.Nodes)) }
func (u Update) EdgeIDs() []EdgeID { return slices.Sorted(maps.Keys(u.Edges)) }
func (u Update) TreeIDs() []TreeID { return slices.Sorted(maps.Keys(u.Trees)) }
func (u Update) ActivityIDs() []ActivityID { return slices.Sorted(maps.Keys(u.Activities)) }

// Observer is notified after each commit with the IDs that changed.
// AfterCommit doesn't have to be reentrant: a Write opened inside it is
// delivered as a separate, later Update once the current wave finishes.
type Observer interface {
	AfterCommit(Update)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Update)

func (f ObserverFunc) AfterCommit(u Update) { f(u) }

type observerEntry struct {
	id  int
	obs Observer
}

// Observe registers o and returns a function that unregisters it. Changes
// made during a notification wave take effect from the next wave.
func (m *Model) Observe(o Observer) (unobserve func()) {
	m.nextObserver++
	id := m.nextObserver
	m.observers = append(m.observers, observerEntry{id: id, obs: o})
	return func() {
		m.observers = slices.DeleteFunc(slices.Clone(m.observers), func(e observerEntry) bool {
			return e.id == id
		})
	}
}

// notify queues u and, unless a wave is already running further up the
// stack, drains the queue. Each wave snapshots the observer list.
func (m *Model) notify(u Update) {
	if !u.Empty() {
		m.queue = append(m.queue, u)
	}
	if m.notifying {
		return
	}
	m.notifying = true
	defer func() { m.notifying = false }()

	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		observers := slices.Clone(m.observers)
		for _, e := range observers {
			e.obs.AfterCommit(next)
		}
	}
}
