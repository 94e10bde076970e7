package luster

import "context"

// ConnState is a position in the streaming connection lifecycle.
//
// A session moves Disconnected → Connecting → Authenticating → Connected and
// back to Disconnected through Closing. Transport failures take the
// Reconnecting detour, which re-enters Connecting after a backoff delay.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Authenticating
	Connected
	Reconnecting
	Closing
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Entity is implemented by every cacheable server-side object.
type Entity interface {
	// EntityID returns the identifier the cache keys the entity by.
	EntityID() string
}

// Store holds the cached entities of one kind.
//
// Store is the whole contract a substitute cache has to satisfy. The event
// pipeline only ever talks to a Store through these four methods, so an
// implementation backed by an external service can replace the default
// in-memory map without touching anything else.
//
// Example:
//
//	user, ok := session.Cache().Users().Get("01FHGJ3NPP7XANQQH8C2BE44ZY")
//	if ok {
//	    log.Printf("cached username: %s", user.Username)
//	}
type Store[E Entity] interface {
	// Put inserts the entity, replacing any entity with the same ID.
	Put(entity E)

	// Get returns the entity with the given ID and whether it was found.
	Get(id string) (E, bool)

	// Delete removes the entity with the given ID. Deleting an absent ID
	// is a no-op.
	Delete(id string)

	// All returns every cached entity in unspecified order.
	All() []E
}

// Cache groups one Store per entity kind.
//
// The synchronizer is the only writer during normal operation. Callers may
// Put entities they fetched over HTTP themselves, but such entities are
// only as fresh as the next event that touches them: nothing reconciles a
// manual insert with the server.
type Cache interface {
	Users() Store[*User]
	Servers() Store[*Server]
	Channels() Store[*Channel]
}

// Listener is a callback registered for one event kind.
//
// Listeners run one at a time on the session's dispatch goroutine, after the
// cache has applied the event. A returned error or a panic is reported to
// the session's diagnostic sink and does not stop other listeners.
//
// Example:
//
//	session.On(luster.KindUserUpdate, func(ctx context.Context, ev luster.Event) error {
//	    update := ev.(luster.UserUpdateEvent)
//	    user, _ := session.Cache().Users().Get(update.ID)
//	    log.Printf("user %s is now %q", update.ID, user.Username)
//	    return nil
//	})
type Listener func(ctx context.Context, event Event) error

// Fetcher is the part of the request/response surface that entities use to
// enrich themselves on demand. Entities hold it as a non-owning handle and
// never use it to write to the cache.
type Fetcher interface {
	FetchUser(ctx context.Context, userID string) (*User, error)
	FetchProfile(ctx context.Context, userID string) (*UserProfile, error)
	FetchServer(ctx context.Context, serverID string) (*Server, error)
}
