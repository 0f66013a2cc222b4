package firefox

import (
	"fmt"
	"strings"

	"github.com/lotas/tabforest/internal/applog"
	"github.com/lotas/tabforest/internal/model"
)

// importable skips blank pages and browser internals.
func importable(url string) bool {
	return url != "" && !strings.HasPrefix(url, "about:")
}

// Importable counts the windows and tabs Import would open for s.
func (s *Session) Importable() (windows, tabs int) {
	for _, win := range s.Windows {
		n := 0
		for _, tab := range win.Tabs {
			if importable(tab.URL) {
				n++
			}
		}
		if n > 0 {
			windows++
			tabs += n
		}
	}
	return windows, tabs
}

// Result is what an Import opened.
type Result struct {
	Trees []model.TreeID
	Tabs  int
}

// Import opens one tree per window of s, one top-level tab per page. Session
// titles and favicons fill in pages that have none yet, and each window's
// selected tab becomes the tree's focused tab. Windows with nothing to
// import are skipped.
func Import(w *model.Write, s *Session) (Result, error) {
	var res Result
	for i, win := range s.Windows {
		var urls []string
		var tabs []Tab
		selected := -1
		for j, tab := range win.Tabs {
			if !importable(tab.URL) {
				continue
			}
			if j == win.Selected {
				selected = len(tabs)
			}
			urls = append(urls, tab.URL)
			tabs = append(tabs, tab)
		}
		if len(urls) == 0 {
			continue
		}

		tree, err := w.OpenTreeForURLs(urls)
		if err != nil {
			return Result{}, fmt.Errorf("import window %d: %w", i, err)
		}
		edges, err := w.Model().TopTabs(tree)
		if err != nil {
			return Result{}, err
		}
		for j, edge := range edges {
			if err := fillNode(w, edge, tabs[j]); err != nil {
				return Result{}, fmt.Errorf("import window %d: %w", i, err)
			}
		}
		if selected >= 0 {
			if err := w.SetFocusedTab(tree, edges[selected]); err != nil {
				return Result{}, err
			}
		}
		applog.Info("firefox.import_window", "tree", tree, "tabs", len(edges))
		res.Trees = append(res.Trees, tree)
		res.Tabs += len(edges)
	}
	return res, nil
}

func fillNode(w *model.Write, edge model.EdgeID, tab Tab) error {
	e, err := w.Model().Edge(edge)
	if err != nil {
		return err
	}
	n, err := w.Model().Node(e.ToNode)
	if err != nil {
		return err
	}
	if n.Title == "" && tab.Title != "" {
		if err := w.SetTitle(n.ID, tab.Title); err != nil {
			return err
		}
	}
	if n.FaviconURL == "" && tab.Favicon != "" {
		if err := w.SetFaviconURL(n.ID, tab.Favicon); err != nil {
			return err
		}
	}
	return nil
}
