package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luciancaetano/luster"
	"github.com/luciancaetano/luster/internal/protocol"
)

const (
	sendBufferSize      = 256
	defaultWriteTimeout = 10 * time.Second
)

// Conn is one physical events socket. A Manager creates a new Conn for
// every (re)connect and never reuses one after it failed.
type Conn struct {
	id           string
	ws           *websocket.Conn
	codec        protocol.Codec
	writeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	sendCh chan []byte
	mu     sync.RWMutex
	closed bool

	// pendingPing is the data of the Ping awaiting its Pong, 0 when none.
	pendingPing atomic.Int64
	pong        chan struct{}
}

func newConn(ws *websocket.Conn, codec protocol.Codec, writeTimeout time.Duration) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	ws.SetReadLimit(protocol.MaxFrameSize)

	return &Conn{
		id:           uuid.New().String(),
		ws:           ws,
		codec:        codec,
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		sendCh:       make(chan []byte, sendBufferSize),
		pong:         make(chan struct{}, 1),
	}
}

// ID returns a unique identifier for this socket, used in logs.
func (c *Conn) ID() string {
	return c.id
}

// Send encodes f and queues it for the write pump.
func (c *Conn) Send(ctx context.Context, f protocol.Frame) error {
	data, err := c.codec.Encode(f)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return luster.ErrNotConnected
	}

	select {
	case c.sendCh <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return luster.ErrNotConnected
	}
}

// writeNow writes f synchronously. It is only used before the write pump
// runs.
func (c *Conn) writeNow(f protocol.Frame) error {
	data, err := c.codec.Encode(f)
	if err != nil {
		return err
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(c.codec.MessageType(), data)
}

// writePump writes queued frames until ctx or the connection is done.
func (c *Conn) writePump(ctx context.Context, sent func()) error {
	for {
		select {
		case data := <-c.sendCh:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(c.codec.MessageType(), data); err != nil {
				return &luster.TransportError{Op: "write", Err: err}
			}
			if sent != nil {
				sent()
			}
		case <-ctx.Done():
			return nil
		case <-c.ctx.Done():
			return nil
		}
	}
}

// readFrame blocks until the next frame arrives. Codec failures wrap
// luster.ErrMalformedFrame or luster.ErrFrameTooLarge; anything else is a
// socket error.
func (c *Conn) readFrame() (protocol.Frame, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return c.codec.Decode(data)
}

// expectPong records the data of a Ping about to be sent.
func (c *Conn) expectPong(data int64) {
	c.pendingPing.Store(data)
}

// matchPong reports whether data answers the outstanding Ping and, if so,
// wakes the heartbeat.
func (c *Conn) matchPong(data int64) bool {
	if data == 0 || !c.pendingPing.CompareAndSwap(data, 0) {
		return false
	}
	select {
	case c.pong <- struct{}{}:
	default:
	}
	return true
}

// Close closes the connection with a normal closure.
func (c *Conn) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode sends a close frame with code and reason, then closes the
// socket. Closing twice is a no-op.
func (c *Conn) CloseWithCode(code int, reason string) error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	message := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	c.ws.WriteControl(websocket.CloseMessage, message, deadline)

	if err := c.ws.Close(); err != nil {
		return fmt.Errorf("close socket %s: %w", c.id, err)
	}
	return nil
}

// abort closes the socket without a close frame, for sockets that already
// failed.
func (c *Conn) abort() {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.ws.Close()
}
