package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/lotas/tabforest/internal/applog"
	"github.com/lotas/tabforest/internal/model"
	"nhooyr.io/websocket"
)

// IncomingMsg is an event from the browser shell. Which fields are set
// depends on Type; see Validate.
type IncomingMsg struct {
	Type string `json:"type"`
	// ID is echoed back in the ack so the shell can match replies.
	ID       string           `json:"id,omitempty"`
	Tree     model.TreeID     `json:"tree,omitempty"`
	Tab      model.EdgeID     `json:"tab,omitempty"`
	Target   model.EdgeID     `json:"target,omitempty"`
	Activity model.ActivityID `json:"activity,omitempty"`
	Address  string           `json:"address,omitempty"`
	URL      string           `json:"url,omitempty"`
	URLs     []string         `json:"urls,omitempty"`
	Title    string           `json:"title,omitempty"`
	Position string           `json:"position,omitempty"`
}

// OutgoingMsg is either a change notification ("update") or the reply to an
// IncomingMsg ("ack" or "error").
type OutgoingMsg struct {
	Type string `json:"type"`
	// Update fields
	Wave       string             `json:"wave,omitempty"`
	Nodes      []model.NodeID     `json:"nodes,omitempty"`
	Edges      []model.EdgeID     `json:"edges,omitempty"`
	Trees      []model.TreeID     `json:"trees,omitempty"`
	Activities []model.ActivityID `json:"activities,omitempty"`
	// Reply fields
	ReplyTo string `json:"replyTo,omitempty"`
	Result  int64  `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewUpdateMsg describes one committed Write. Each gets a fresh wave id so
// clients can dedupe across reconnects.
func NewUpdateMsg(u model.Update) OutgoingMsg {
	return OutgoingMsg{
		Type:       "update",
		Wave:       uuid.NewString(),
		Nodes:      u.NodeIDs(),
		Edges:      u.EdgeIDs(),
		Trees:      u.TreeIDs(),
		Activities: u.ActivityIDs(),
	}
}

// Server manages the WebSocket connection to the browser shell.
type Server struct {
	port    int
	msgs    chan IncomingMsg
	mu      sync.Mutex
	conn    *websocket.Conn
	connCtx context.Context
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port: port,
		msgs: make(chan IncomingMsg, 64),
	}
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Messages returns the channel of incoming events. Events are delivered in
// the order they were read.
func (s *Server) Messages() <-chan IncomingMsg {
	return s.msgs
}

// Connected reports whether a shell is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send sends a message to the connected shell. It is a no-op when nothing
// is connected.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	applog.Debug("ws.send", "type", msg.Type, "wave", msg.Wave, "replyTo", msg.ReplyTo)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			log.Printf("websocket accept: %v", err)
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(4 << 20) // open_tree can carry a whole window of urls

		ctx := r.Context()
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connCtx = nil
			}
			s.mu.Unlock()
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			if err := msg.Validate(); err != nil {
				applog.Error("ws.invalid", err, "type", msg.Type, "id", msg.ID)
				s.Send(OutgoingMsg{Type: "error", ReplyTo: msg.ID, Error: err.Error()})
				continue
			}
			applog.Debug("ws.recv", "type", msg.Type, "id", msg.ID)
			// Events change the model, so they are never dropped.
			select {
			case s.msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	})
}

// ListenAndServe starts the WebSocket server on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	return srv.ListenAndServe()
}
