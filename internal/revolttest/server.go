// Package revolttest provides an in-process events server for tests.
//
// The server speaks the events protocol over a real websocket: it answers
// Authenticate with Authenticated (or an Error frame), echoes Ping as Pong
// and lets tests push arbitrary frames or cut connections.
package revolttest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luciancaetano/luster/internal/protocol"
)

// Config scripts the server's behaviour.
type Config struct {
	// Token is the only token accepted. Empty accepts any token.
	Token string
	// Ready, when set, is sent right after Authenticated.
	Ready protocol.Frame
	// IgnorePings stops the server from answering heartbeats.
	IgnorePings bool
}

// Server is a scripted events server.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	cfg         Config
	rejectLabel string
	silent      bool
	conns       map[string]*serverConn
	connects    int
	received    []protocol.Frame
	formats     []protocol.Format
	changed     chan struct{}
}

type serverConn struct {
	id    string
	ws    *websocket.Conn
	codec protocol.Codec
	wmu   sync.Mutex
}

func (c *serverConn) send(f protocol.Frame) error {
	data, err := c.codec.Encode(f)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(c.codec.MessageType(), data)
}

// NewServer starts a server that is shut down when the test ends.
func NewServer(t testing.TB, cfg Config) *Server {
	t.Helper()

	s := &Server{
		cfg:     cfg,
		conns:   make(map[string]*serverConn),
		changed: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

// URL returns the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Close drops every connection and stops the server.
func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

// Reject makes every following handshake fail with an Error frame carrying
// label. An empty label restores normal behaviour.
func (s *Server) Reject(label string) {
	s.mu.Lock()
	s.rejectLabel = label
	s.mu.Unlock()
}

// Silence makes the server stop answering Authenticate, so handshakes
// time out.
func (s *Server) Silence(silent bool) {
	s.mu.Lock()
	s.silent = silent
	s.mu.Unlock()
}

// Send writes f to every live connection.
func (s *Server) Send(f protocol.Frame) {
	for _, c := range s.live() {
		c.send(f)
	}
}

// SendRaw writes data as is to every live connection, bypassing the codec.
func (s *Server) SendRaw(messageType int, data []byte) {
	for _, c := range s.live() {
		c.wmu.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		c.ws.WriteMessage(messageType, data)
		c.wmu.Unlock()
	}
}

// DropConnections closes every live connection without a close frame.
func (s *Server) DropConnections() {
	for _, c := range s.live() {
		c.ws.Close()
	}
}

// Connects returns how many handshakes have been attempted.
func (s *Server) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Live returns the number of open connections.
func (s *Server) Live() int {
	return len(s.live())
}

// Received returns every frame read from clients, in arrival order.
func (s *Server) Received() []protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Frame, len(s.received))
	copy(out, s.received)
	return out
}

// Formats returns the wire format requested by each connection.
func (s *Server) Formats() []protocol.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Format, len(s.formats))
	copy(out, s.formats)
	return out
}

// WaitFor polls cond until it holds or timeout passes.
func (s *Server) WaitFor(t testing.TB, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("revolttest: condition not met before timeout")
		}
		s.mu.Lock()
		changed := s.changed
		s.mu.Unlock()
		select {
		case <-changed:
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (s *Server) live() []*serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*serverConn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// notify wakes WaitFor. Callers hold s.mu.
func (s *Server) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	format, err := protocol.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		format = protocol.FormatJSON
	}
	codec, _ := protocol.NewCodec(format)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &serverConn{id: uuid.New().String(), ws: ws, codec: codec}
	s.mu.Lock()
	s.conns[c.id] = c
	s.formats = append(s.formats, format)
	s.notify()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, c.id)
		s.notify()
		s.mu.Unlock()
		ws.Close()
	}()

	s.serve(c)
}

func (s *Server) serve(c *serverConn) {
	authenticated := false
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := c.codec.Decode(data)
		if err != nil {
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseProtocolError, "invalid frame"),
				time.Now().Add(time.Second))
			return
		}

		s.mu.Lock()
		s.received = append(s.received, f)
		cfg, reject, silent := s.cfg, s.rejectLabel, s.silent
		if f.Type() == protocol.TypeAuthenticate {
			s.connects++
		}
		s.notify()
		s.mu.Unlock()

		switch f.Type() {
		case protocol.TypeAuthenticate:
			if silent {
				continue
			}
			if authenticated {
				c.send(protocol.Frame{"type": "Error", "error": "AlreadyAuthenticated"})
				continue
			}
			if reject == "" && cfg.Token != "" && f.String("token") != cfg.Token {
				reject = "InvalidSession"
			}
			if reject != "" {
				c.send(protocol.Frame{"type": "Error", "error": reject})
				continue
			}
			authenticated = true
			c.send(protocol.Frame{"type": "Authenticated"})
			if cfg.Ready != nil {
				c.send(cfg.Ready)
			}
		case protocol.TypePing:
			if cfg.IgnorePings {
				continue
			}
			c.send(protocol.Frame{"type": "Pong", "data": f["data"]})
		}
	}
}
