// Package rest is the request/response surface of the chat API.
//
// It covers the calls a client library needs around the events stream:
// node discovery, the user, server, channel, role and group calls, and
// uploads to the file server. Every failed call returns a *luster.APIError
// carrying the error label from the response body.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/luciancaetano/luster"
)

const (
	DefaultBaseURL       = "https://api.revolt.chat"
	DefaultFileServerURL = "https://autumn.revolt.chat"

	userAgent       = "luster (https://github.com/luciancaetano/luster)"
	maxResponseSize = 10 * 1024 * 1024
)

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the API root. Defaults to DefaultBaseURL.
	BaseURL string
	// FileServerURL is the upload server root. Defaults to
	// DefaultFileServerURL; QueryNode reports the node's own.
	FileServerURL string
	Token         string
	// Bot selects the X-Bot-Token header; otherwise X-Session-Token is
	// sent.
	Bot bool
	// HTTPClient is used for all requests and left alone by
	// CloseIdleConnections. If nil, the client uses a private transport.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// RequestsPerSecond and Burst limit outgoing requests. Zero disables
	// limiting.
	RequestsPerSecond rate.Limit
	Burst             int
}

// Client performs authenticated API calls. It is safe for concurrent use.
type Client struct {
	baseURL       string
	fileServerURL string
	token         string
	bot           bool
	httpClient    *http.Client
	ownsHTTP      bool
	logger        *slog.Logger
	limiter       *rate.Limiter
}

var _ luster.Fetcher = (*Client)(nil)

// New creates a new Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.FileServerURL == "" {
		cfg.FileServerURL = DefaultFileServerURL
	}
	for _, raw := range []string{cfg.BaseURL, cfg.FileServerURL} {
		if _, err := url.Parse(raw); err != nil {
			return nil, fmt.Errorf("rest: invalid URL %q: %w", raw, err)
		}
	}

	httpClient, ownsHTTP := cfg.HTTPClient, false
	if httpClient == nil {
		httpClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
		ownsHTTP = true
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.RequestsPerSecond, burst)
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		fileServerURL: strings.TrimRight(cfg.FileServerURL, "/"),
		token:         cfg.Token,
		bot:           cfg.Bot,
		httpClient:    httpClient,
		ownsHTTP:      ownsHTTP,
		logger:        logger,
		limiter:       limiter,
	}, nil
}

// CloseIdleConnections closes idle connections of the client's own
// transport. An injected HTTPClient is not touched.
func (c *Client) CloseIdleConnections() {
	if !c.ownsHTTP {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// doJSON sends requestBody as JSON and decodes the response into out. A nil
// out discards the response.
func (c *Client) doJSON(ctx context.Context, method, path string, requestBody, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("rest: encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	data, err := c.do(ctx, method, c.baseURL+path, contentType, body)
	if err != nil {
		return err
	}
	return decode(data, out, method, path)
}

func decode(data []byte, out any, method, path string) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("rest: parse %s %s response: %w", method, path, err)
	}
	return nil
}

// do performs one request and returns the body of a 2xx response. A 204
// response yields nil.
func (c *Client) do(ctx context.Context, method, requestURL, contentType string, body io.Reader) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("rest: create request: %w", err)
	}
	request.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		if c.bot {
			request.Header.Set("X-Bot-Token", c.token)
		} else {
			request.Header.Set("X-Session-Token", c.token)
		}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("rest: request to %s %s failed: %w", method, requestURL, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("rest: read response body: %w", err)
	}

	switch {
	case response.StatusCode == http.StatusNoContent:
		return nil, nil
	case response.StatusCode >= 200 && response.StatusCode < 300:
		return responseBody, nil
	}

	apiErr := &luster.APIError{Status: response.StatusCode, Body: responseBody}
	if jsonErr := json.Unmarshal(responseBody, apiErr); jsonErr != nil {
		c.logger.Debug("non-JSON error response",
			"method", method,
			"url", requestURL,
			"status", response.StatusCode,
		)
	}
	return nil, apiErr
}

// IsNotFound reports whether err is an API error with status 404.
func IsNotFound(err error) bool {
	var apiErr *luster.APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsForbidden reports whether err is an API error with status 401 or 403.
func IsForbidden(err error) bool {
	var apiErr *luster.APIError
	return errors.As(err, &apiErr) &&
		(apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}

func escape(id string) string {
	return url.PathEscape(id)
}
