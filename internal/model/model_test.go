package model

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lotas/tabforest/internal/applog"
)

// testModel opens a Model on a temporary database. Its clock advances one
// second per reading so timestamps are distinct and ordered.
func testModel(t *testing.T) *Model {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := Open(dbPath, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	if err != nil {
		t.Fatalf("Open(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// write runs fn in a Write and fails the test if it errors.
func write(t *testing.T, m *Model, fn func(w *Write) error) {
	t.Helper()
	if err := m.Write(fn); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func countRows(t *testing.T, m *Model, table string) int {
	t.Helper()
	var n int
	if err := m.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestBeginTwice(t *testing.T) {
	m := testModel(t)

	w, err := m.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := m.Begin(); !errors.Is(err, ErrWriteInProgress) {
		t.Fatalf("second Begin error = %v, want ErrWriteInProgress", err)
	}
	if err := m.Write(func(*Write) error { return nil }); !errors.Is(err, ErrWriteInProgress) {
		t.Fatalf("nested Write error = %v, want ErrWriteInProgress", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	w2, err := m.Begin()
	if err != nil {
		t.Fatalf("Begin after commit: %v", err)
	}
	w2.Rollback()
}

func TestUseAfterCommitPanics(t *testing.T) {
	m := testModel(t)
	w, err := m.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic using a committed Write")
		}
	}()
	w.EnsureNodeWithURL("http://example.com/")
}

func TestRollbackDiscardsEverything(t *testing.T) {
	m := testModel(t)
	calls := 0
	m.Observe(ObserverFunc(func(Update) { calls++ }))

	var tree TreeID
	write(t, m, func(w *Write) (err error) {
		tree, err = w.OpenTreeForURLs([]string{"http://a.example/"})
		return err
	})
	if calls != 1 {
		t.Fatalf("observer calls after setup = %d, want 1", calls)
	}
	tabs, err := m.TopTabs(tree)
	if err != nil || len(tabs) != 1 {
		t.Fatalf("TopTabs = %v, %v", tabs, err)
	}
	nodesBefore := countRows(t, m, "nodes")
	edgesBefore := countRows(t, m, "edges")

	boom := errors.New("boom")
	err = m.Write(func(w *Write) error {
		if _, err := w.OpenTreeForURLs([]string{"http://b.example/", "http://c.example/"}); err != nil {
			return err
		}
		if err := w.SetEdgeTitle(tabs[0], "renamed"); err != nil {
			return err
		}
		if err := w.FocusTab(tree, tabs[0]); err != nil {
			return err
		}
		if len(w.Model().Activities()) != 1 {
			t.Errorf("activity not visible inside the write")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Write error = %v, want boom", err)
	}
	if calls != 1 {
		t.Errorf("observer called for a rolled back write")
	}
	if got := countRows(t, m, "nodes"); got != nodesBefore {
		t.Errorf("nodes = %d, want %d", got, nodesBefore)
	}
	if got := countRows(t, m, "edges"); got != edgesBefore {
		t.Errorf("edges = %d, want %d", got, edgesBefore)
	}
	e, err := m.Edge(tabs[0])
	if err != nil {
		t.Fatalf("Edge: %v", err)
	}
	if e.Title != "" {
		t.Errorf("edge title = %q after rollback, want empty", e.Title)
	}
	d, err := m.Tree(tree)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if d.FocusedTab != 0 {
		t.Errorf("focused tab = %v after rollback, want 0", d.FocusedTab)
	}
	if acts := m.Activities(); len(acts) != 0 {
		t.Errorf("activities = %v after rollback, want none", acts)
	}
	open, _ := m.OpenTrees()
	if len(open) != 1 {
		t.Errorf("open trees = %v, want just %v", open, tree)
	}
}

func TestWritePanicLogsFailedRollback(t *testing.T) {
	m := testModel(t)
	logDir := t.TempDir()
	if err := applog.Init(logDir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(applog.Close)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic was swallowed")
			}
		}()
		m.Write(func(w *Write) error {
			// The transaction is gone before the Write rolls it back.
			m.tx.Rollback()
			panic("mid-write")
		})
	}()

	data, err := os.ReadFile(filepath.Join(logDir, "tabforest.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "ERROR write.rollback err=") {
		t.Errorf("log = %q, want the rollback error", data)
	}
	write(t, m, func(w *Write) error {
		_, err := w.EnsureNodeWithURL("http://example.com/")
		return err
	})
}

func TestWritePanicRollsBack(t *testing.T) {
	m := testModel(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic was swallowed")
			}
		}()
		m.Write(func(w *Write) error {
			if _, err := w.EnsureNodeWithURL("http://example.com/"); err != nil {
				return err
			}
			panic("mid-write")
		})
	}()

	if n := countRows(t, m, "nodes"); n != 0 {
		t.Errorf("nodes = %d after panic, want 0", n)
	}
	// The model is usable again.
	write(t, m, func(w *Write) error {
		_, err := w.EnsureNodeWithURL("http://example.com/")
		return err
	})
}

func TestMutatorOnMissingEntity(t *testing.T) {
	m := testModel(t)
	tests := []struct {
		name string
		fn   func(w *Write) error
	}{
		{"SetTitle", func(w *Write) error { return w.SetTitle(99, "x") }},
		{"Trash", func(w *Write) error { return w.Trash(99) }},
		{"CloseTree", func(w *Write) error { return w.CloseTree(99) }},
		{"Reload", func(w *Write) error { return w.Reload(99) }},
		{"MakeNextSibling", func(w *Write) error {
			_, err := w.MakeNextSibling(99, 0, "")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.Write(tt.fn); !errors.Is(err, ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	m, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var tree TreeID
	err = m.Write(func(w *Write) (err error) {
		tree, err = w.OpenTreeForURLs([]string{"http://a.example/", "http://b.example/"})
		if err != nil {
			return err
		}
		tabs, err := w.Model().TopTabs(tree)
		if err != nil {
			return err
		}
		return w.ExpandTab(tree, tabs[1])
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	m.Close()

	m, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer m.Close()
	d, err := m.Tree(tree)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if !d.Exists() || d.RootNode == 0 {
		t.Fatalf("tree after reopen = %+v", d)
	}
	tabs, err := m.TopTabs(tree)
	if err != nil || len(tabs) != 2 {
		t.Fatalf("TopTabs = %v, %v", tabs, err)
	}
	if !d.Expanded(tabs[1]) || d.Expanded(tabs[0]) {
		t.Errorf("expanded tabs = %v, want only %v", d.ExpandedTabs, tabs[1])
	}
	e, _ := m.Edge(tabs[0])
	n, _ := m.Node(e.ToNode)
	if n.URL != "http://a.example/" {
		t.Errorf("first tab url = %q", n.URL)
	}
}
