package server

import (
	"errors"
	"fmt"
)

// Event types sent by the browser shell.
const (
	FocusTab            = "focus_tab"
	NavigateTab         = "navigate_tab"
	NavigationStarted   = "navigation_started"
	NavigationCompleted = "navigation_completed"
	TitleChanged        = "title_changed"
	FaviconChanged      = "favicon_changed"
	URLChanged          = "url_changed"
	NewWindowRequested  = "new_window_requested"
	OpenTree            = "open_tree"
	CloseTree           = "close_tree"
	UncloseTree         = "unclose_tree"
	ReloadTab           = "reload_tab"
	StopTab             = "stop_tab"
	ExpandTab           = "expand_tab"
	ContractTab         = "contract_tab"
	TrashTab            = "trash_tab"
	MoveTab             = "move_tab"
)

// Positions for new_window_requested and move_tab.
const (
	FirstChild  = "first_child"
	LastChild   = "last_child"
	NextSibling = "next_sibling"
	PrevSibling = "prev_sibling"
)

// Validate checks that msg carries the fields its Type needs.
func (msg IncomingMsg) Validate() error {
	need := func(ok bool, field string) error {
		if !ok {
			return fmt.Errorf("%s: missing %s", msg.Type, field)
		}
		return nil
	}
	switch msg.Type {
	case "":
		return errors.New("missing type")
	case FocusTab, ReloadTab, StopTab, ExpandTab, ContractTab, TrashTab:
		return errors.Join(need(msg.Tree != 0, "tree"), need(msg.Tab != 0, "tab"))
	case NavigateTab:
		return errors.Join(need(msg.Tree != 0, "tree"), need(msg.Tab != 0, "tab"), need(msg.Address != "", "address"))
	case NavigationStarted, NavigationCompleted:
		return need(msg.Activity != 0, "activity")
	case TitleChanged:
		return need(msg.Activity != 0, "activity")
	case FaviconChanged, URLChanged:
		return errors.Join(need(msg.Activity != 0, "activity"), need(msg.URL != "", "url"))
	case NewWindowRequested:
		return errors.Join(
			need(msg.Activity != 0, "activity"),
			need(msg.URL != "", "url"),
			validPosition(msg.Position),
		)
	case OpenTree:
		return need(len(msg.URLs) > 0, "urls")
	case CloseTree:
		return need(msg.Tree != 0, "tree")
	case UncloseTree:
		// Tree 0 means the most recently closed one.
		return nil
	case MoveTab:
		return errors.Join(
			need(msg.Tree != 0, "tree"),
			need(msg.Tab != 0, "tab"),
			need(msg.Target != 0, "target"),
			validPosition(msg.Position),
		)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func validPosition(p string) error {
	switch p {
	case FirstChild, LastChild, NextSibling, PrevSibling:
		return nil
	case "":
		return errors.New("missing position")
	default:
		return fmt.Errorf("unknown position %q", p)
	}
}
