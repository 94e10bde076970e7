package client

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luciancaetano/luster"
)

// CloseHook runs once when the session closes, whatever the reason. Its
// error is logged and does not stop the shutdown.
type CloseHook func(ctx context.Context) error

// ErrorHandler receives failures that do not stop the session: listener
// errors and panics, cache sync failures and undecodable payloads.
type ErrorHandler func(err error)

// Option configures the runtime collaborators of a Session.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	cache        luster.Cache
	closeHook    CloseHook
	errorHandler ErrorHandler
	registerer   prometheus.Registerer
	httpClient   *http.Client
	dialer       *websocket.Dialer
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCache replaces the in-memory entity cache.
func WithCache(cache luster.Cache) Option {
	return func(o *options) { o.cache = cache }
}

// WithCloseHook registers fn to run exactly once on shutdown: after Close,
// after Run's context ends, or after a reconnect was rejected by the server.
func WithCloseHook(fn CloseHook) Option {
	return func(o *options) { o.closeHook = fn }
}

func WithErrorHandler(fn ErrorHandler) Option {
	return func(o *options) { o.errorHandler = fn }
}

// WithMetrics registers the session's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithHTTPClient sets the client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithDialer sets the dialer used for the events socket.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}
