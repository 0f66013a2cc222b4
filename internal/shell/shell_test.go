package shell

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lotas/tabforest/internal/model"
	"github.com/lotas/tabforest/internal/server"
)

type recorder struct {
	msgs []server.OutgoingMsg
}

func (r *recorder) Send(msg server.OutgoingMsg) error {
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) last(t *testing.T) server.OutgoingMsg {
	t.Helper()
	if len(r.msgs) == 0 {
		t.Fatal("nothing sent")
	}
	return r.msgs[len(r.msgs)-1]
}

func testShell(t *testing.T) (*Shell, *model.Model, *recorder) {
	t.Helper()
	m, err := model.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("model.Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	rec := &recorder{}
	s := New(m, rec)
	t.Cleanup(s.Close)
	return s, m, rec
}

func TestStartCreatesDefaultTree(t *testing.T) {
	s, m, rec := testShell(t)

	trees, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(trees) != 1 {
		t.Fatalf("trees = %v, want one", trees)
	}
	tabs, _ := m.TopTabs(trees[0])
	if len(tabs) != 1 {
		t.Errorf("default tree tabs = %v", tabs)
	}
	if len(rec.msgs) != 1 || rec.msgs[0].Type != "update" {
		t.Errorf("sent %+v, want one update", rec.msgs)
	}

	// A second start keeps what's open.
	again, _ := s.Start()
	if len(again) != 1 || again[0] != trees[0] {
		t.Errorf("second Start = %v", again)
	}
}

func TestStartReopensClosedTrees(t *testing.T) {
	s, m, _ := testShell(t)
	var tree model.TreeID
	err := m.Write(func(w *model.Write) (err error) {
		if tree, err = w.OpenTreeForURLs([]string{"http://a.example/"}); err != nil {
			return err
		}
		return w.CloseTree(tree)
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	trees, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(trees) != 1 || trees[0] != tree {
		t.Errorf("Start = %v, want [%v]", trees, tree)
	}
}

func TestHandleBrowsingSession(t *testing.T) {
	s, m, rec := testShell(t)

	s.Handle(server.IncomingMsg{Type: server.OpenTree, ID: "1", URLs: []string{"http://a.example/"}})
	ack := rec.last(t)
	if ack.Type != "ack" || ack.ReplyTo != "1" || ack.Result == 0 {
		t.Fatalf("open_tree reply = %+v", ack)
	}
	tree := model.TreeID(ack.Result)
	if update := rec.msgs[len(rec.msgs)-2]; update.Type != "update" || len(update.Trees) != 1 {
		t.Errorf("update before ack = %+v", update)
	}
	tabs, _ := m.TopTabs(tree)

	s.Handle(server.IncomingMsg{Type: server.FocusTab, ID: "2", Tree: tree, Tab: tabs[0]})
	act := m.ActivityForTree(tree)
	if act == 0 {
		t.Fatal("focus made no activity")
	}

	s.Handle(server.IncomingMsg{Type: server.NavigationStarted, Activity: act})
	s.Handle(server.IncomingMsg{Type: server.URLChanged, Activity: act, URL: "http://a.example/next"})
	s.Handle(server.IncomingMsg{Type: server.TitleChanged, Activity: act, Title: "Next"})
	s.Handle(server.IncomingMsg{Type: server.NavigationCompleted, Activity: act})

	d := m.Activity(act)
	if d.Loading() {
		t.Error("activity still loading")
	}
	n, _ := m.Node(d.Node)
	if n.URL != "http://a.example/next" || n.Title != "Next" {
		t.Errorf("node = %+v", n)
	}
	if focused, _ := m.Tree(tree); focused.FocusedTab != d.Edge {
		t.Errorf("focus = %v, want %v", focused.FocusedTab, d.Edge)
	}

	s.Handle(server.IncomingMsg{
		Type: server.NewWindowRequested, ID: "3", Activity: act,
		URL: "http://b.example/", Position: server.NextSibling,
	})
	reply := rec.last(t)
	if reply.Type != "ack" || reply.Result == 0 {
		t.Fatalf("new window reply = %+v", reply)
	}
	sibling, _ := m.Edge(model.EdgeID(reply.Result))
	cur, _ := m.Edge(d.Edge)
	if sibling.FromNode != cur.FromNode || sibling.OpenerNode != d.Node {
		t.Errorf("sibling = %+v, want parent %v opened by %v", sibling, cur.FromNode, d.Node)
	}

	s.Handle(server.IncomingMsg{Type: server.CloseTree, ID: "4", Tree: tree})
	if open, _ := m.OpenTrees(); len(open) != 0 {
		t.Errorf("open trees after close = %v", open)
	}
	s.Handle(server.IncomingMsg{Type: server.UncloseTree, ID: "5"})
	if got := rec.last(t); got.Result != int64(tree) {
		t.Errorf("unclose reply = %+v, want tree %v", got, tree)
	}
}

func TestHandleReportsErrors(t *testing.T) {
	s, _, rec := testShell(t)

	s.Handle(server.IncomingMsg{Type: server.TrashTab, ID: "x", Tree: 1, Tab: 99})
	got := rec.last(t)
	if got.Type != "error" || got.ReplyTo != "x" || got.Error == "" {
		t.Errorf("reply = %+v, want error", got)
	}
	for _, msg := range rec.msgs {
		if msg.Type == "update" {
			t.Errorf("failed event produced an update: %+v", msg)
		}
	}
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	s, m, _ := testShell(t)
	msgs := make(chan server.IncomingMsg, 2)
	msgs <- server.IncomingMsg{Type: server.OpenTree, URLs: []string{"http://a.example/"}}
	close(msgs)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Run(ctx, msgs); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if open, _ := m.OpenTrees(); len(open) != 1 {
		t.Errorf("open trees = %v, want 1", open)
	}
}
