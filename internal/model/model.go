// Package model is the persistent tab graph: Nodes (pages), Edges
// (positioned links that form tab trees), Trees (one per window) and
// Activities (live rendering bindings). Nodes, Edges and Trees are stored in
// SQLite and cached per ID; Activities live only in memory.
//
// All changes go through a Write. When a Write commits, every registered
// Observer receives the set of touched IDs exactly once, in commit order,
// even when an Observer itself opens another Write.
//
// A Model is not safe for concurrent use. Callers that receive events on
// several goroutines must funnel them to one goroutine that owns the Model.
package model

import (
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/lotas/tabforest/internal/applog"
	"github.com/lotas/tabforest/internal/storage"
)

var (
	// ErrWriteInProgress is returned by Begin while another Write is active.
	ErrWriteInProgress = errors.New("model: a write is already in progress")
	// ErrNotFound is returned by mutators given an ID that doesn't exist.
	ErrNotFound = errors.New("model: no such entity")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Model owns the database handle, the entity caches, the activity indices
// and the write/notification state. Several Models can coexist, each with
// its own database.
type Model struct {
	db  *sql.DB
	now func() time.Time

	nodes map[NodeID]*NodeData
	edges map[EdgeID]*EdgeData
	trees map[TreeID]*TreeData
	acts  *activityIndex

	// Write state. tx is non-nil while a Write is active.
	tx      *sql.Tx
	active  *Write
	current Update
	// actsBefore is a copy of acts taken the first time a Write touches an
	// activity, restored on rollback.
	actsBefore *activityIndex

	// Notification state.
	queue        []Update
	notifying    bool
	observers    []observerEntry
	nextObserver int
}

// Option configures a Model.
type Option func(*Model)

// WithClock replaces time.Now for timestamps the Model records.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// Open opens (or creates) the database at path and returns a Model over it.
func Open(path string, opts ...Option) (*Model, error) {
	db, err := storage.OpenDB(path)
	if err != nil {
		return nil, err
	}
	applog.Info("model.open", "path", path)
	return New(db, opts...), nil
}

// New wraps an already-migrated database. The Model takes ownership of db.
func New(db *sql.DB, opts ...Option) *Model {
	m := &Model{
		db:    db,
		now:   time.Now,
		nodes: make(map[NodeID]*NodeData),
		edges: make(map[EdgeID]*EdgeData),
		trees: make(map[TreeID]*TreeData),
		acts:  newActivityIndex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close rolls back any active Write and closes the database.
func (m *Model) Close() error {
	if m.active != nil {
		if err := m.active.Rollback(); err != nil {
			applog.Error("model.close.rollback", err)
		}
	}
	applog.Info("model.close")
	return m.db.Close()
}

// DB exposes the underlying handle for read-only inspection.
func (m *Model) DB() *sql.DB { return m.db }

// conn routes reads through the active transaction so a Write sees its own
// uncommitted rows.
func (m *Model) conn() querier {
	if m.tx != nil {
		return m.tx
	}
	return m.db
}

func (m *Model) touchNode(id NodeID) { m.current.Nodes[id] = struct{}{} }
func (m *Model) touchEdge(id EdgeID) { m.current.Edges[id] = struct{}{} }
func (m *Model) touchTree(id TreeID) { m.current.Trees[id] = struct{}{} }
func (m *Model) touchActivity(id ActivityID) { m.current.Activities[id] = struct{}{} }

func collectIDs[T ~int64](q querier, query string, args ...any) ([]T, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []T
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, T(id))
	}
	return ids, rows.Err()
}

// unixNano and fromUnixNano map the zero time to 0 so "unset" columns can be
// compared with > 0 in SQL.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func urlHash(url string) int64 {
	h := fnv.New64a()
	h.Write([]byte(url))
	return int64(h.Sum64())
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
}
