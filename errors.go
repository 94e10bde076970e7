package luster

import (
	"errors"
	"fmt"
)

// Connection and protocol errors.
var (
	ErrAlreadyConnected = errors.New("luster: already connected")
	ErrNotConnected     = errors.New("luster: not connected")
	ErrClosed           = errors.New("luster: session closed")
	ErrHeartbeatTimeout = errors.New("luster: heartbeat timed out")
	ErrMalformedFrame   = errors.New("luster: malformed frame")
	ErrFrameTooLarge    = errors.New("luster: frame too large")
	ErrDetached         = errors.New("luster: entity is not bound to a session")
)

// Error labels sent by the events server, plus the label used locally when
// the handshake response cannot be understood.
const (
	LabelInternalError         = "InternalError"
	LabelInvalidSession        = "InvalidSession"
	LabelOnboardingNotFinished = "OnboardingNotFinished"
	LabelAlreadyAuthenticated  = "AlreadyAuthenticated"
	LabelMalformedResponse     = "MalformedResponse"
)

// AuthError reports a rejected handshake. It is never retried automatically:
// the caller has to intervene, usually with a new token.
type AuthError struct {
	Label string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("luster: authentication failed: %s", e.Label)
}

// TransportError wraps a socket or codec failure. Transport errors are
// transient: the connection manager reconnects after a backoff delay.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("luster: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ListenerError is reported to the diagnostic sink when a listener returns
// an error or panics.
type ListenerError struct {
	Kind         EventKind
	Registration string
	Err          error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("luster: listener %s for %s failed: %v", e.Registration, e.Kind, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

// APIError is the structured error payload of the request/response surface.
// Callers can use errors.As to read the label:
//
//	var apiErr *luster.APIError
//	if errors.As(err, &apiErr) && apiErr.Type == "NotFound" { ... }
type APIError struct {
	// Type is the error label from the response body (e.g. "NotFound",
	// "MissingPermission").
	Type string `json:"type"`
	// Status is the HTTP status code of the response.
	Status int `json:"-"`
	// Body is the raw response body.
	Body []byte `json:"-"`
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("luster: api error (%d)", e.Status)
	}
	return fmt.Sprintf("luster: api error %s (%d)", e.Type, e.Status)
}

// IsAPIError reports whether err is an *APIError with the given label.
func IsAPIError(err error, label string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type == label
	}
	return false
}
