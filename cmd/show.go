package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lotas/tabforest/internal/model"
	"github.com/spf13/cobra"
)

var showJSON bool

type tabJSON struct {
	Edge     model.EdgeID `json:"edge"`
	Node     model.NodeID `json:"node,omitempty"`
	URL      string       `json:"url,omitempty"`
	Title    string       `json:"title,omitempty"`
	Focused  bool         `json:"focused,omitempty"`
	Expanded bool         `json:"expanded,omitempty"`
	Children []tabJSON    `json:"children,omitempty"`
}

type treeJSON struct {
	ID   model.TreeID `json:"id"`
	Tabs []tabJSON    `json:"tabs"`
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the open trees",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openModel()
		if err != nil {
			return err
		}
		defer m.Close()

		trees, err := collectTrees(m)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if showJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(trees)
		}
		for _, t := range trees {
			fmt.Fprintf(out, "Tree %d\n", t.ID)
			printTabs(out, t.Tabs, 1)
		}
		return nil
	},
}

func collectTrees(m *model.Model) ([]treeJSON, error) {
	ids, err := m.OpenTrees()
	if err != nil {
		return nil, err
	}
	trees := []treeJSON{}
	for _, id := range ids {
		t, err := m.Tree(id)
		if err != nil {
			return nil, err
		}
		tabs, err := collectTabs(m, t, t.RootNode, map[model.NodeID]bool{t.RootNode: true})
		if err != nil {
			return nil, err
		}
		trees = append(trees, treeJSON{ID: id, Tabs: tabs})
	}
	return trees, nil
}

// collectTabs lists every live tab under node. path holds the pages above
// it so a page linking back to an ancestor isn't walked again.
func collectTabs(m *model.Model, t model.TreeData, node model.NodeID, path map[model.NodeID]bool) ([]tabJSON, error) {
	edges, err := m.EdgesFromNode(node)
	if err != nil {
		return nil, err
	}
	var tabs []tabJSON
	for _, id := range edges {
		e, err := m.Edge(id)
		if err != nil {
			return nil, err
		}
		if e.Trashed() {
			continue
		}
		n, err := m.Node(e.ToNode)
		if err != nil {
			return nil, err
		}
		tab := tabJSON{
			Edge:     e.ID,
			Node:     n.ID,
			URL:      n.URL,
			Title:    firstNonEmpty(e.Title, n.Title),
			Focused:  t.FocusedTab == e.ID,
			Expanded: t.Expanded(e.ID),
		}
		if n.Exists() && !path[n.ID] {
			path[n.ID] = true
			tab.Children, err = collectTabs(m, t, n.ID, path)
			delete(path, n.ID)
			if err != nil {
				return nil, err
			}
		}
		tabs = append(tabs, tab)
	}
	return tabs, nil
}

func printTabs(w io.Writer, tabs []tabJSON, depth int) {
	for _, tab := range tabs {
		mark := " "
		if tab.Focused {
			mark = "*"
		}
		label := firstNonEmpty(tab.Title, tab.URL, "New tab")
		fmt.Fprintf(w, "%s%s %s", strings.Repeat("  ", depth), mark, label)
		if tab.Title != "" && tab.URL != "" {
			fmt.Fprintf(w, " <%s>", tab.URL)
		}
		fmt.Fprintln(w)
		printTabs(w, tab.Children, depth+1)
	}
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(showCmd)
}
