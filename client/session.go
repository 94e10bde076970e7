// Package client ties the events stream, the cache and the API together
// into a Session.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luciancaetano/luster"
	"github.com/luciancaetano/luster/cache"
	"github.com/luciancaetano/luster/internal/cachesync"
	"github.com/luciancaetano/luster/internal/dispatch"
	"github.com/luciancaetano/luster/internal/metrics"
	"github.com/luciancaetano/luster/internal/protocol"
	socket "github.com/luciancaetano/luster/internal/websocket"
	"github.com/luciancaetano/luster/rest"
)

// Registration is the handle returned by On. Remove unregisters the
// listener.
type Registration = dispatch.Registration

// Session is one authenticated client: a single events connection, the
// entity cache it keeps up to date and the API client. A closed Session
// cannot be reused.
type Session struct {
	cfg        Config
	opts       options
	logger     *slog.Logger
	cache      luster.Cache
	rest       *rest.Client
	metrics    *metrics.Metrics
	sink       *dispatch.Sink
	dispatcher *dispatch.Dispatcher

	mu      sync.Mutex
	manager *socket.Manager
	closing bool
	cause   error

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// New creates a Disconnected session. Nothing is dialed until Connect or
// Run.
func New(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.cache == nil {
		o.cache = cache.New()
	}

	restClient, err := rest.New(rest.Config{
		BaseURL:           cfg.APIURL,
		FileServerURL:     cfg.FileServerURL,
		Token:             cfg.Token,
		Bot:               cfg.Bot,
		HTTPClient:        o.httpClient,
		Logger:            o.logger,
		RequestsPerSecond: rateLimit(cfg.APIRate),
		Burst:             cfg.APIBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	m := metrics.New(o.registerer)
	sink := &dispatch.Sink{Logger: o.logger, Metrics: m}
	if o.errorHandler != nil {
		sink.Handler = dispatch.ErrorHandler(o.errorHandler)
	}

	return &Session{
		cfg:     cfg,
		opts:    o,
		logger:  o.logger,
		cache:   o.cache,
		rest:    restClient,
		metrics: m,
		sink:    sink,
		dispatcher: dispatch.New(dispatch.Config{
			Applier: cachesync.New(o.cache, restClient),
			Sink:    sink,
			Metrics: m,
		}),
		closed: make(chan struct{}),
	}, nil
}

// Connect opens the events connection and returns once the server accepted
// the token. Transient failures are retried until ctx is done; a rejected
// token is returned as *luster.AuthError. Connect fails with
// luster.ErrAlreadyConnected while a connection is open or being opened.
func (s *Session) Connect(ctx context.Context) error {
	m, err := s.managerFor(ctx)
	if err != nil {
		return err
	}
	return m.Connect(ctx)
}

// managerFor returns the connection manager, creating it on first use.
func (s *Session) managerFor(ctx context.Context) (*socket.Manager, error) {
	s.mu.Lock()
	m, closing := s.manager, s.closing
	s.mu.Unlock()
	if closing {
		return nil, luster.ErrClosed
	}
	if m != nil {
		return m, nil
	}

	url := s.cfg.WebsocketURL
	if url == "" {
		node, err := s.rest.QueryNode(ctx)
		if err != nil {
			return nil, fmt.Errorf("client: discover events endpoint: %w", err)
		}
		if node.WS == "" {
			return nil, errors.New("client: node did not report an events endpoint")
		}
		s.logger.Debug("discovered events endpoint", slog.String("url", node.WS), slog.String("revolt", node.Revolt))
		url = node.WS
	}

	m, err := socket.NewManager(socket.Config{
		URL:               url,
		Token:             s.cfg.Token,
		Format:            protocol.Format(s.cfg.Format),
		HandshakeTimeout:  s.cfg.HandshakeTimeout,
		HeartbeatInterval: s.cfg.HeartbeatInterval,
		HeartbeatTimeout:  s.cfg.HeartbeatTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		RateLimit:         s.cfg.sendLimit(),
		NewBackOff:        s.cfg.Reconnect.policy(),
		Dialer:            s.opts.dialer,
		Logger:            s.logger,
		Metrics:           s.metrics,
		OnFrame:           s.handleFrame,
		OnFatal:           s.handleFatal,
	})
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, luster.ErrClosed
	}
	if s.manager == nil {
		s.manager = m
	}
	return s.manager, nil
}

// Run connects, keeps the connection alive and closes the session when ctx
// is done or the connection fails for good. The session is closed when Run
// returns; a cancelled ctx is a normal shutdown and yields nil.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return s.closeAfter(ctx)
		}
		s.shutdown(context.Background(), err)
		return err
	}

	select {
	case <-ctx.Done():
		return s.closeAfter(ctx)
	case <-s.closed:
		return s.Err()
	}
}

func (s *Session) closeAfter(ctx context.Context) error {
	s.logger.Info("shutting down", slog.Any("reason", context.Cause(ctx)))
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CloseTimeout)
	defer cancel()
	return s.Close(closeCtx)
}

// Close closes the connection, stops event dispatch after the event in
// flight and runs the close hook. Only the first call does anything; later
// calls wait for it and return nil.
func (s *Session) Close(ctx context.Context) error {
	return s.shutdown(ctx, nil)
}

func (s *Session) shutdown(ctx context.Context, cause error) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.cause = cause
		m := s.manager
		// Nothing is dispatched once closing is observable, even while
		// the connection below is still being torn down.
		s.dispatcher.Halt()
		s.mu.Unlock()

		var errs []error
		if m != nil {
			if err := m.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("close connection: %w", err))
			}
		}
		if err := s.dispatcher.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop dispatch: %w", err))
		}
		s.runCloseHook(ctx)
		s.rest.CloseIdleConnections()

		err = errors.Join(errs...)
		s.closeErr = err
		close(s.closed)
		s.logger.Info("session closed")
	})
	return err
}

func (s *Session) runCloseHook(ctx context.Context) {
	if s.opts.closeHook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("close hook panicked", slog.Any("panic", r))
		}
	}()
	if err := s.opts.closeHook(ctx); err != nil {
		s.logger.Error("close hook failed", slog.Any("error", err))
	}
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Err returns why the session closed on its own, such as the
// *luster.AuthError of a rejected reconnect. It is nil while the session is
// open and after a requested Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// handleFatal closes the session after the manager gave up.
func (s *Session) handleFatal(err error) {
	s.logger.Error("connection failed permanently", slog.Any("error", err))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CloseTimeout)
		defer cancel()
		s.shutdown(ctx, err)
	}()
}

// handleFrame runs on the read loop, so it only decodes and enqueues.
func (s *Session) handleFrame(f protocol.Frame) {
	events, err := dispatch.Decode(f)
	if err != nil {
		s.sink.Report(err)
	}

	for _, ev := range events {
		switch ev := ev.(type) {
		case luster.AuthenticatedEvent:
			s.logger.Debug("authenticated")
		case luster.PongEvent:
			s.logger.Debug("pong", slog.Int64("data", ev.Data))
		case luster.ErrorEvent:
			s.logger.Warn("server reported an error", slog.String("label", ev.Label))
		}
	}

	if err := s.dispatcher.Push(events...); err != nil && !errors.Is(err, luster.ErrClosed) {
		s.sink.Report(err)
	}
}

// On registers fn for events of kind; luster.KindAny receives every event.
// Listeners run after the cache applied the event, in registration order.
func (s *Session) On(kind luster.EventKind, fn luster.Listener) *Registration {
	return s.dispatcher.On(kind, fn)
}

// Listeners returns the registrations for kind in dispatch order.
func (s *Session) Listeners(kind luster.EventKind) []*Registration {
	return s.dispatcher.Listeners(kind)
}

// RemoveListeners unregisters every listener for kind and returns how many
// there were.
func (s *Session) RemoveListeners(kind luster.EventKind) int {
	return s.dispatcher.Clear(kind)
}

// ListenedKinds returns every kind with at least one listener.
func (s *Session) ListenedKinds() []luster.EventKind {
	return s.dispatcher.Kinds()
}

// Emit queues a caller-built event behind the events already received. It
// goes through the same path as server events, cache sync included.
func (s *Session) Emit(ev luster.Event) error {
	return s.dispatcher.Emit(ev)
}

// BeginTyping shows the session user as typing in channelID.
func (s *Session) BeginTyping(ctx context.Context, channelID string) error {
	return s.send(ctx, protocol.BeginTyping(channelID))
}

// EndTyping clears the typing indicator in channelID.
func (s *Session) EndTyping(ctx context.Context, channelID string) error {
	return s.send(ctx, protocol.EndTyping(channelID))
}

func (s *Session) send(ctx context.Context, f protocol.Frame) error {
	s.mu.Lock()
	m := s.manager
	s.mu.Unlock()
	if m == nil {
		return luster.ErrNotConnected
	}
	return m.Send(ctx, f)
}

// State returns the connection state.
func (s *Session) State() luster.ConnState {
	s.mu.Lock()
	m := s.manager
	s.mu.Unlock()
	if m == nil {
		return luster.Disconnected
	}
	return m.State()
}

// LastPong returns when the last heartbeat was answered, or the zero time.
func (s *Session) LastPong() time.Time {
	s.mu.Lock()
	m := s.manager
	s.mu.Unlock()
	if m == nil {
		return time.Time{}
	}
	return m.LastPong()
}

// Cache returns the entity cache. Entities put there by hand are not kept
// fresh by anything but later events that touch them.
func (s *Session) Cache() luster.Cache {
	return s.cache
}

// REST returns the API client. Entities it returns are bound to it.
func (s *Session) REST() *rest.Client {
	return s.rest
}
