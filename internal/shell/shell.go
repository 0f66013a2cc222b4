// Package shell connects the browser shell's events to the model. It owns
// the Model: every event is applied on the goroutine running Run, one Write
// per event, and each committed Write is pushed back out as an update.
package shell

import (
	"context"
	"fmt"

	"github.com/lotas/tabforest/internal/applog"
	"github.com/lotas/tabforest/internal/model"
	"github.com/lotas/tabforest/internal/server"
)

// Sender delivers outgoing messages, normally a *server.Server.
type Sender interface {
	Send(server.OutgoingMsg) error
}

// Shell applies incoming events to a Model.
type Shell struct {
	m         *model.Model
	out       Sender
	unobserve func()
}

// New creates a Shell and starts forwarding the model's updates to out.
func New(m *model.Model, out Sender) *Shell {
	s := &Shell{m: m, out: out}
	s.unobserve = m.Observe(model.ObserverFunc(func(u model.Update) {
		if err := out.Send(server.NewUpdateMsg(u)); err != nil {
			applog.Error("shell.send_update", err)
		}
	}))
	return s
}

// Close stops forwarding updates. It doesn't close the Model.
func (s *Shell) Close() {
	s.unobserve()
}

// Start makes sure there is a window to show: it reopens the trees closed
// in the last session or, if there are none, creates a blank one.
func (s *Shell) Start() ([]model.TreeID, error) {
	open, err := s.m.OpenTrees()
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return open, nil
	}
	err = s.m.Write(func(w *model.Write) error {
		reopened, err := w.UncloseRecentlyClosedTrees()
		if err != nil || len(reopened) > 0 {
			return err
		}
		_, err = w.CreateDefaultTree()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("start shell: %w", err)
	}
	return s.m.OpenTrees()
}

// Run applies events until msgs is closed or ctx is done.
func (s *Shell) Run(ctx context.Context, msgs <-chan server.IncomingMsg) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			s.Handle(msg)
		}
	}
}

// Handle applies one event in its own Write and replies with an ack or an
// error. The update for the Write has already been sent when the ack goes
// out.
func (s *Shell) Handle(msg server.IncomingMsg) {
	var result int64
	err := s.m.Write(func(w *model.Write) (err error) {
		result, err = apply(w, msg)
		return err
	})
	reply := server.OutgoingMsg{Type: "ack", ReplyTo: msg.ID, Result: result}
	if err != nil {
		applog.Error("shell.handle", err, "type", msg.Type, "id", msg.ID)
		reply = server.OutgoingMsg{Type: "error", ReplyTo: msg.ID, Error: err.Error()}
	}
	if msg.ID == "" {
		return
	}
	if err := s.out.Send(reply); err != nil {
		applog.Error("shell.send_reply", err, "id", msg.ID)
	}
}

// apply maps an event to model mutators. The result is the ID of anything
// the event created, or 0.
func apply(w *model.Write, msg server.IncomingMsg) (int64, error) {
	switch msg.Type {
	case server.FocusTab:
		return 0, w.FocusTab(msg.Tree, msg.Tab)
	case server.NavigateTab:
		return 0, w.NavigateTab(msg.Tree, msg.Tab, msg.Address)
	case server.NavigationStarted:
		return 0, w.StartedLoading(msg.Activity)
	case server.NavigationCompleted:
		return 0, w.FinishedLoading(msg.Activity)
	case server.TitleChanged:
		return 0, w.TitleChanged(msg.Activity, msg.Title)
	case server.FaviconChanged:
		return 0, w.FaviconURLChanged(msg.Activity, msg.URL)
	case server.URLChanged:
		return 0, w.URLChanged(msg.Activity, msg.URL)
	case server.NewWindowRequested:
		var edge model.EdgeID
		var err error
		switch msg.Position {
		case server.FirstChild:
			edge, err = w.OpenFirstChild(msg.Activity, msg.URL, msg.Title)
		case server.LastChild:
			edge, err = w.OpenLastChild(msg.Activity, msg.URL, msg.Title)
		case server.NextSibling:
			edge, err = w.OpenNextSibling(msg.Activity, msg.URL, msg.Title)
		case server.PrevSibling:
			edge, err = w.OpenPrevSibling(msg.Activity, msg.URL, msg.Title)
		}
		return int64(edge), err
	case server.OpenTree:
		tree, err := w.OpenTreeForURLs(msg.URLs)
		return int64(tree), err
	case server.CloseTree:
		return 0, w.CloseTree(msg.Tree)
	case server.UncloseTree:
		if msg.Tree == 0 {
			tree, err := w.UncloseLastClosedTree()
			return int64(tree), err
		}
		return int64(msg.Tree), w.UncloseTree(msg.Tree)
	case server.ReloadTab:
		return 0, w.ReloadTab(msg.Tree, msg.Tab)
	case server.StopTab:
		return 0, w.StopTab(msg.Tree, msg.Tab)
	case server.ExpandTab:
		return 0, w.ExpandTab(msg.Tree, msg.Tab)
	case server.ContractTab:
		return 0, w.ContractTab(msg.Tree, msg.Tab)
	case server.TrashTab:
		return 0, w.TrashTab(msg.Tree, msg.Tab)
	case server.MoveTab:
		switch msg.Position {
		case server.FirstChild:
			return 0, w.MoveTabFirstChild(msg.Tree, msg.Tab, msg.Target)
		case server.LastChild:
			return 0, w.MoveTabLastChild(msg.Tree, msg.Tab, msg.Target)
		case server.NextSibling:
			return 0, w.MoveTabAfter(msg.Tree, msg.Tab, msg.Target)
		case server.PrevSibling:
			return 0, w.MoveTabBefore(msg.Tree, msg.Tab, msg.Target)
		}
	}
	return 0, fmt.Errorf("unhandled message %q", msg.Type)
}
