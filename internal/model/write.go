package model

import (
	"fmt"

	"github.com/lotas/tabforest/internal/applog"
)

// Write is the single active write transaction. Functions that change the
// Model are methods on Write; the Observers attached to the Model are told
// which IDs changed once the Write commits.
//
// Only one Write can be active at a time, though a new one may be started
// from inside an Observer after the previous one has committed.
type Write struct {
	m    *Model
	done bool
}

// Begin starts a Write. It fails with ErrWriteInProgress if one is active.
func (m *Model) Begin() (*Write, error) {
	if m.active != nil {
		return nil, ErrWriteInProgress
	}
	tx, err := m.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin write: %w", err)
	}
	w := &Write{m: m}
	m.tx = tx
	m.active = w
	m.current = newUpdate()
	m.actsBefore = nil
	return w, nil
}

// Write runs fn inside a Write. If fn returns an error or panics, the Write
// is rolled back and the error (or panic) propagates; otherwise it commits
// and observers are notified before Write returns.
func (m *Model) Write(fn func(w *Write) error) error {
	w, err := m.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := w.Rollback(); rbErr != nil {
				applog.Error("write.rollback", rbErr)
			}
			panic(p)
		}
	}()
	if err := fn(w); err != nil {
		if rbErr := w.Rollback(); rbErr != nil {
			applog.Error("write.rollback", rbErr)
		}
		return err
	}
	return w.Commit()
}

// Model returns the Model for reads inside the Write.
func (w *Write) Model() *Model { return w.m }

func (w *Write) check() {
	if w.done {
		panic("model: use of a finished Write")
	}
}

// Commit commits the transaction and then notifies observers. If the
// commit itself fails the Write is discarded as if rolled back.
func (w *Write) Commit() error {
	w.check()
	m := w.m
	if err := m.tx.Commit(); err != nil {
		applog.Error("write.commit", err)
		m.discard()
		return fmt.Errorf("commit write: %w", err)
	}
	update := m.current
	m.finish()
	applog.Debug("write.commit",
		"nodes", len(update.Nodes), "edges", len(update.Edges),
		"trees", len(update.Trees), "activities", len(update.Activities))
	m.notify(update)
	return nil
}

// Rollback abandons the Write. Cached entities touched by it are evicted so
// the next read reloads them, and activities are restored. Calling Rollback
// on a finished Write does nothing, so it is safe to defer.
func (w *Write) Rollback() error {
	if w.done {
		return nil
	}
	m := w.m
	err := m.tx.Rollback()
	applog.Info("write.rollback",
		"nodes", len(m.current.Nodes), "edges", len(m.current.Edges),
		"trees", len(m.current.Trees), "activities", len(m.current.Activities))
	m.discard()
	if err != nil {
		return fmt.Errorf("rollback write: %w", err)
	}
	return nil
}

func (m *Model) discard() {
	for id := range m.current.Nodes {
		delete(m.nodes, id)
	}
	for id := range m.current.Edges {
		delete(m.edges, id)
	}
	for id := range m.current.Trees {
		delete(m.trees, id)
	}
	if m.actsBefore != nil {
		m.acts = m.actsBefore
	}
	m.finish()
}

func (m *Model) finish() {
	m.active.done = true
	m.active = nil
	m.tx = nil
	m.current = Update{}
	m.actsBefore = nil
}
