package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lotas/tabforest/internal/model"
	"nhooyr.io/websocket"
)

func dial(t *testing.T, ctx context.Context, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestServerAcceptsConnection(t *testing.T) {
	srv := New(0) // port 0 = pick any free port
	msgs := srv.Messages()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv)

	data, _ := json.Marshal(IncomingMsg{Type: FocusTab, Tree: 1, Tab: 4})
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Type != FocusTab || msg.Tab != 4 {
			t.Errorf("got %+v, want focus_tab of tab 4", msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestServerRejectsInvalidMessage(t *testing.T) {
	srv := New(0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv)

	data, _ := json.Marshal(IncomingMsg{Type: NavigateTab, ID: "bad-1", Tree: 1, Tab: 2})
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, reply, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got OutgoingMsg
	if err := json.Unmarshal(reply, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "error" || got.ReplyTo != "bad-1" || !strings.Contains(got.Error, "address") {
		t.Errorf("got %+v, want error reply to bad-1", got)
	}
	select {
	case msg := <-srv.Messages():
		t.Errorf("invalid message was forwarded: %+v", msg)
	default:
	}
}

func TestServerSendsUpdate(t *testing.T) {
	srv := New(0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv)

	// Give server a moment to register the connection
	time.Sleep(50 * time.Millisecond)

	u := model.Update{
		Nodes:      map[model.NodeID]struct{}{7: {}},
		Edges:      map[model.EdgeID]struct{}{3: {}, 1: {}},
		Trees:      map[model.TreeID]struct{}{},
		Activities: map[model.ActivityID]struct{}{},
	}
	sent := NewUpdateMsg(u)
	if err := srv.Send(sent); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got OutgoingMsg
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "update" || got.Wave == "" || got.Wave != sent.Wave {
		t.Errorf("got %+v, want update with wave %s", got, sent.Wave)
	}
	if len(got.Edges) != 2 || got.Edges[0] != 1 || got.Edges[1] != 3 {
		t.Errorf("edges = %v, want [1 3]", got.Edges)
	}
	if len(got.Nodes) != 1 || got.Nodes[0] != 7 {
		t.Errorf("nodes = %v, want [7]", got.Nodes)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	srv := New(0)
	if srv.Connected() {
		t.Fatal("connected before any dial")
	}
	if err := srv.Send(OutgoingMsg{Type: "ack"}); err != nil {
		t.Errorf("Send without connection: %v", err)
	}
}
