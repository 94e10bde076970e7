// Package websocket owns the events socket: dialing, the Authenticate
// handshake, heartbeats and reconnection.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/luster"
	"github.com/luciancaetano/luster/internal/metrics"
	"github.com/luciancaetano/luster/internal/protocol"
)

// Config configures a Manager.
type Config struct {
	// URL is the events endpoint; version and format are appended as
	// query parameters.
	URL    string
	Token  string
	Format protocol.Format

	// HandshakeTimeout bounds dialing plus the wait for Authenticated.
	HandshakeTimeout time.Duration
	// HeartbeatInterval is the time between Pings, HeartbeatTimeout how
	// long a Pong may take.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	WriteTimeout      time.Duration

	// RateLimit limits frames sent through Send. Nil disables limiting.
	RateLimit *RateLimitConfig

	// NewBackOff returns the reconnect policy. It is called once per
	// outage so every outage starts from the initial delay.
	NewBackOff func() backoff.BackOff

	Dialer  *websocket.Dialer
	Header  http.Header
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// OnFrame receives every inbound frame in arrival order, handshake
	// frames included. It must not block.
	OnFrame func(protocol.Frame)
	// OnFatal is called once the manager gives up: an authentication
	// failure while reconnecting. The manager is Disconnected by then.
	OnFatal func(error)
}

// Manager drives the connection state machine. At most one socket is live
// at any time.
type Manager struct {
	cfg     Config
	codec   protocol.Codec
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics

	state    atomic.Int32
	lastPong atomic.Int64

	mu     sync.Mutex
	conn   *Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager validates cfg and returns a Disconnected manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("websocket: URL is required")
	}
	if cfg.Format == "" {
		cfg.Format = protocol.FormatJSON
	}
	codec, err := protocol.NewCodec(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 20 * time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 10 * time.Second
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		cfg:     cfg,
		codec:   codec,
		limiter: cfg.RateLimit.limiter(),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// State returns the current connection state.
func (m *Manager) State() luster.ConnState {
	return luster.ConnState(m.state.Load())
}

// LastPong returns when the last matching Pong arrived, or the zero time.
func (m *Manager) LastPong() time.Time {
	ms := m.lastPong.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// setState moves to s unless the manager is Closing, which only Close may
// leave.
func (m *Manager) setState(s luster.ConnState) bool {
	for {
		cur := m.state.Load()
		if luster.ConnState(cur) == luster.Closing && s != luster.Disconnected {
			return false
		}
		if m.state.CompareAndSwap(cur, int32(s)) {
			if luster.ConnState(cur) != s {
				m.metrics.SetState(s)
				m.logger.Debug("connection state changed",
					slog.String("from", luster.ConnState(cur).String()),
					slog.String("state", s.String()))
			}
			return true
		}
	}
}

// Connect dials, authenticates and starts the read loop, heartbeat and
// reconnect supervision. It returns once the handshake succeeded.
//
// Dial and handshake timeouts are retried on the backoff policy until ctx
// is done. A rejected handshake is returned as *luster.AuthError without
// retry. Connect fails with luster.ErrAlreadyConnected unless the manager
// is Disconnected.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if !m.state.CompareAndSwap(int32(luster.Disconnected), int32(luster.Connecting)) {
		m.mu.Unlock()
		return luster.ErrAlreadyConnected
	}
	m.metrics.SetState(luster.Connecting)
	life, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	attempt, stop := context.WithCancel(life)
	defer stop()
	unhook := context.AfterFunc(ctx, stop)
	defer unhook()

	conn, err := m.establish(attempt, m.cfg.NewBackOff())
	if err != nil {
		cancel()
		m.finish(done)
		if life.Err() != nil && ctx.Err() == nil {
			return luster.ErrClosed
		}
		return err
	}

	go m.supervise(life, conn, done)
	return nil
}

// Close stops the manager: the read loop, the heartbeat and any pending
// reconnect are cancelled and the socket gets a normal-closure close frame.
// Close waits until everything stopped or ctx is done. Closing a
// Disconnected manager is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.State() == luster.Disconnected || m.cancel == nil {
		m.mu.Unlock()
		return nil
	}
	m.setState(luster.Closing)
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send queues f on the live socket, after waiting for the send limiter.
func (m *Manager) Send(ctx context.Context, f protocol.Frame) error {
	if m.State() != luster.Connected {
		return luster.ErrNotConnected
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return luster.ErrNotConnected
	}
	return conn.Send(ctx, f)
}

func (m *Manager) finish(done chan struct{}) {
	m.mu.Lock()
	m.conn = nil
	m.cancel = nil
	m.setState(luster.Disconnected)
	m.mu.Unlock()
	close(done)
}

// supervise serves conn and reconnects after every transport failure until
// life is cancelled or authentication fails.
func (m *Manager) supervise(life context.Context, conn *Conn, done chan struct{}) {
	var fatal error
	defer func() {
		m.finish(done)
		if fatal != nil && m.cfg.OnFatal != nil {
			m.cfg.OnFatal(fatal)
		}
	}()

	for {
		err := m.serve(life, conn)
		if life.Err() != nil {
			return
		}
		m.logger.Warn("connection lost", slog.String("conn", conn.ID()), slog.Any("error", err))

		conn, err = m.reconnect(life)
		if err != nil {
			if life.Err() != nil || errors.Is(err, luster.ErrClosed) {
				return
			}
			m.logger.Error("reconnect failed, giving up", slog.Any("error", err))
			fatal = err
			return
		}
	}
}

// reconnect waits for the first backoff delay, then retries until a
// handshake succeeds.
func (m *Manager) reconnect(ctx context.Context) (*Conn, error) {
	if !m.setState(luster.Reconnecting) {
		return nil, luster.ErrClosed
	}
	m.metrics.Reconnect()

	policy := m.cfg.NewBackOff()
	delay := policy.NextBackOff()
	if delay == backoff.Stop {
		return nil, fmt.Errorf("websocket: reconnect policy gave up")
	}
	m.logger.Info("reconnecting", slog.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return m.establish(ctx, continued{policy})
}

// continued carries a policy that already produced delays into Retry,
// which resets the policy it is given.
type continued struct {
	backoff.BackOff
}

func (continued) Reset() {}

// establish dials and authenticates, retrying transient failures with the
// delays of policy.
func (m *Manager) establish(ctx context.Context, policy backoff.BackOff) (*Conn, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (*Conn, error) {
		attempt++
		conn, err := m.dialAndAuthenticate(ctx)
		if err == nil {
			return conn, nil
		}

		var authErr *luster.AuthError
		if errors.As(err, &authErr) || errors.Is(err, luster.ErrClosed) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			m.setState(luster.Reconnecting)
			m.metrics.Reconnect()
			m.logger.Warn("connect attempt failed",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err))
		}),
	)
}

func (m *Manager) endpoint() (string, error) {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("websocket: parse URL: %w", err)
	}
	q := u.Query()
	q.Set("version", strconv.Itoa(protocol.Version))
	q.Set("format", string(m.codec.Format()))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dialAndAuthenticate opens one socket and runs the handshake on it. Every
// frame read is forwarded to OnFrame.
func (m *Manager) dialAndAuthenticate(ctx context.Context) (*Conn, error) {
	if !m.setState(luster.Connecting) {
		return nil, luster.ErrClosed
	}

	endpoint, err := m.endpoint()
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	hsCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()

	ws, resp, err := m.cfg.Dialer.DialContext(hsCtx, endpoint, m.cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, &luster.TransportError{Op: "dial", Err: err}
	}

	conn := newConn(ws, m.codec, m.cfg.WriteTimeout)
	if !m.setState(luster.Authenticating) {
		conn.abort()
		return nil, luster.ErrClosed
	}

	if err := conn.writeNow(protocol.Authenticate(m.cfg.Token)); err != nil {
		conn.abort()
		return nil, &luster.TransportError{Op: "authenticate", Err: err}
	}
	m.metrics.FrameSent()

	deadline, _ := hsCtx.Deadline()
	ws.SetReadDeadline(deadline)
	unblock := context.AfterFunc(hsCtx, func() { ws.SetReadDeadline(time.Now()) })
	defer unblock()

	for {
		f, err := conn.readFrame()
		if err != nil {
			conn.abort()
			return nil, m.handshakeError(ctx, err)
		}
		m.metrics.FrameReceived()
		m.deliver(f)

		switch luster.EventKind(f.Type()) {
		case luster.KindAuthenticated:
			unblock()
			ws.SetReadDeadline(time.Time{})
			m.mu.Lock()
			m.conn = conn
			m.mu.Unlock()
			if !m.setState(luster.Connected) {
				conn.Close()
				return nil, luster.ErrClosed
			}
			m.logger.Info("connected", slog.String("conn", conn.ID()), slog.String("format", string(m.codec.Format())))
			return conn, nil
		case luster.KindError:
			conn.abort()
			label := f.String("error")
			if label == "" {
				label = luster.LabelMalformedResponse
			}
			m.metrics.AuthFailure(label)
			m.logger.Error("authentication rejected", slog.String("label", label))
			return nil, &luster.AuthError{Label: label}
		}
	}
}

// handshakeError classifies a read failure during the handshake. An
// unintelligible answer is an authentication failure; a timeout or a dead
// socket is transient.
func (m *Manager) handshakeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var closeErr *websocket.CloseError
	if errors.Is(err, luster.ErrMalformedFrame) || errors.As(err, &closeErr) {
		m.metrics.AuthFailure(luster.LabelMalformedResponse)
		m.logger.Error("malformed handshake response", slog.Any("error", err))
		return &luster.AuthError{Label: luster.LabelMalformedResponse}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &luster.TransportError{Op: "handshake", Err: fmt.Errorf("no Authenticated within %s: %w", m.cfg.HandshakeTimeout, err)}
	}
	return &luster.TransportError{Op: "handshake", Err: err}
}

func (m *Manager) deliver(f protocol.Frame) {
	if m.cfg.OnFrame != nil {
		m.cfg.OnFrame(f)
	}
}

// serve runs the read loop, write pump and heartbeat of conn until one of
// them fails or ctx is cancelled, then closes the socket.
func (m *Manager) serve(ctx context.Context, conn *Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return m.readLoop(gctx, conn) })
	g.Go(func() error { return conn.writePump(gctx, m.metrics.FrameSent) })
	g.Go(func() error { return m.heartbeat(gctx, conn) })
	g.Go(func() error {
		<-gctx.Done()
		// Unblocks the read loop.
		if ctx.Err() != nil {
			conn.Close()
		} else {
			conn.abort()
		}
		return nil
	})

	err := g.Wait()

	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	return err
}

func (m *Manager) readLoop(ctx context.Context, conn *Conn) error {
	for {
		f, err := conn.readFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// An undecodable frame means the stream can no longer be
			// trusted: reconnect like any other transport failure.
			if errors.Is(err, luster.ErrMalformedFrame) || errors.Is(err, luster.ErrFrameTooLarge) {
				m.metrics.DecodeFailed()
				m.logger.Warn("undecodable frame, dropping connection", slog.String("conn", conn.ID()), slog.Any("error", err))
				return &luster.TransportError{Op: "decode", Err: err}
			}
			return &luster.TransportError{Op: "read", Err: err}
		}
		m.metrics.FrameReceived()

		if f.Type() == string(luster.KindPong) {
			if data, ok := f.Int64("data"); ok && conn.matchPong(data) {
				now := time.Now()
				m.lastPong.Store(now.UnixMilli())
				m.metrics.HeartbeatRTT(now.Sub(time.UnixMilli(data)))
			}
		}
		m.deliver(f)
	}
}

// heartbeat sends a Ping every interval and fails the connection when the
// matching Pong does not arrive in time.
func (m *Manager) heartbeat(ctx context.Context, conn *Conn) error {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}

		data := time.Now().UnixMilli()
		if data <= last {
			data = last + 1
		}
		last = data

		conn.expectPong(data)
		if err := conn.Send(ctx, protocol.Ping(data)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &luster.TransportError{Op: "ping", Err: err}
		}

		timer := time.NewTimer(m.cfg.HeartbeatTimeout)
		select {
		case <-conn.pong:
			timer.Stop()
		case <-timer.C:
			m.logger.Warn("heartbeat timed out", slog.String("conn", conn.ID()), slog.Duration("timeout", m.cfg.HeartbeatTimeout))
			return &luster.TransportError{Op: "heartbeat", Err: luster.ErrHeartbeatTimeout}
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}
