// Package titles fills in titles for pages that were recorded without one,
// such as tabs opened in the background and never loaded.
package titles

import (
	"context"
	"fmt"
	"io"

	"github.com/lotas/tabforest/internal/applog"
	"github.com/lotas/tabforest/internal/model"
)

// Fetcher returns the title of the page at url.
type Fetcher func(ctx context.Context, url string) (string, error)

// Result counts what a Backfill did.
type Result struct {
	Titled int
	Failed int
}

// Backfill fetches titles for up to limit untitled http(s) pages and stores
// each one in its own Write, so observers see pages as they are titled.
// Fetch failures are counted and skipped. Progress lines go to out if it is
// not nil.
func Backfill(ctx context.Context, m *model.Model, limit int, fetch Fetcher, out io.Writer) (Result, error) {
	var res Result
	if fetch == nil {
		fetch = FetchTitle
	}
	if out == nil {
		out = io.Discard
	}

	ids, err := m.UntitledNodes(limit)
	if err != nil {
		return res, err
	}
	applog.Info("titles.start", "count", len(ids))

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := m.Node(id)
		if err != nil {
			return res, err
		}
		fmt.Fprintf(out, "[%d/%d] %s", i+1, len(ids), n.URL)

		title, err := fetch(ctx, n.URL)
		if err != nil {
			fmt.Fprintf(out, " ✗ %v\n", err)
			applog.Error("titles.fetch", err, "node", id)
			res.Failed++
			continue
		}
		if err := m.Write(func(w *model.Write) error { return w.SetTitle(id, title) }); err != nil {
			fmt.Fprintln(out)
			return res, fmt.Errorf("store title for %v: %w", id, err)
		}
		fmt.Fprintf(out, " ✓ %s\n", title)
		res.Titled++
	}

	applog.Info("titles.done", "titled", res.Titled, "errors", res.Failed)
	return res, nil
}
