package luster

// EventKind identifies an event. The built-in kinds mirror the `type`
// discriminator of inbound frames; any other value is a custom kind that
// can be emitted and listened to exactly like a built-in one.
type EventKind string

// KindAny registers a listener for every event regardless of kind.
const KindAny EventKind = "*"

const (
	KindError              EventKind = "Error"
	KindAuthenticated      EventKind = "Authenticated"
	KindBulk               EventKind = "Bulk"
	KindPong               EventKind = "Pong"
	KindReady              EventKind = "Ready"
	KindMessage            EventKind = "Message"
	KindMessageUpdate      EventKind = "MessageUpdate"
	KindMessageAppend      EventKind = "MessageAppend"
	KindMessageDelete      EventKind = "MessageDelete"
	KindChannelCreate      EventKind = "ChannelCreate"
	KindChannelUpdate      EventKind = "ChannelUpdate"
	KindChannelDelete      EventKind = "ChannelDelete"
	KindChannelGroupJoin   EventKind = "ChannelGroupJoin"
	KindChannelGroupLeave  EventKind = "ChannelGroupLeave"
	KindChannelStartTyping EventKind = "ChannelStartTyping"
	KindChannelStopTyping  EventKind = "ChannelStopTyping"
	KindChannelAck         EventKind = "ChannelAck"
	KindServerCreate       EventKind = "ServerCreate"
	KindServerUpdate       EventKind = "ServerUpdate"
	KindServerDelete       EventKind = "ServerDelete"
	KindServerMemberJoin   EventKind = "ServerMemberJoin"
	KindServerMemberUpdate EventKind = "ServerMemberUpdate"
	KindServerMemberLeave  EventKind = "ServerMemberLeave"
	KindServerRoleUpdate   EventKind = "ServerRoleUpdate"
	KindServerRoleDelete   EventKind = "ServerRoleDelete"
	KindUserUpdate         EventKind = "UserUpdate"
	KindUserRelationship   EventKind = "UserRelationship"
	KindEmojiCreate        EventKind = "EmojiCreate"
	KindEmojiDelete        EventKind = "EmojiDelete"
)

// Event is one occurrence on the events stream. Events are values and must
// not be modified after they are dispatched.
type Event interface {
	Kind() EventKind
}

// Patch is a partial set of field updates keyed by wire field name.
type Patch map[string]any

type ErrorEvent struct {
	Label string `json:"error"`
}

func (ErrorEvent) Kind() EventKind { return KindError }

func (e ErrorEvent) Error() string { return "luster: server error: " + e.Label }

type AuthenticatedEvent struct{}

func (AuthenticatedEvent) Kind() EventKind { return KindAuthenticated }

type PongEvent struct {
	Data int64 `json:"data"`
}

func (PongEvent) Kind() EventKind { return KindPong }

// ReadyEvent carries the initial state of the session.
type ReadyEvent struct {
	Users    []*User    `json:"users"`
	Servers  []*Server  `json:"servers"`
	Channels []*Channel `json:"channels"`
	Emojis   []*Emoji   `json:"emojis,omitempty"`
}

func (ReadyEvent) Kind() EventKind { return KindReady }

type MessageEvent struct {
	Message *Message
}

func (MessageEvent) Kind() EventKind { return KindMessage }

type MessageUpdateEvent struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Data    Patch  `json:"data"`
}

func (MessageUpdateEvent) Kind() EventKind { return KindMessageUpdate }

type MessageAppendEvent struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Append  Patch  `json:"append"`
}

func (MessageAppendEvent) Kind() EventKind { return KindMessageAppend }

type MessageDeleteEvent struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
}

func (MessageDeleteEvent) Kind() EventKind { return KindMessageDelete }

type ChannelCreateEvent struct {
	Channel *Channel
}

func (ChannelCreateEvent) Kind() EventKind { return KindChannelCreate }

// ChannelUpdateEvent patches a channel. Fields named in Clear are reset
// after Data is applied.
type ChannelUpdateEvent struct {
	ID    string   `json:"id"`
	Data  Patch    `json:"data"`
	Clear []string `json:"clear"`
}

func (ChannelUpdateEvent) Kind() EventKind { return KindChannelUpdate }

type ChannelDeleteEvent struct {
	ID string `json:"id"`
}

func (ChannelDeleteEvent) Kind() EventKind { return KindChannelDelete }

type ChannelGroupJoinEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (ChannelGroupJoinEvent) Kind() EventKind { return KindChannelGroupJoin }

type ChannelGroupLeaveEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (ChannelGroupLeaveEvent) Kind() EventKind { return KindChannelGroupLeave }

type ChannelStartTypingEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (ChannelStartTypingEvent) Kind() EventKind { return KindChannelStartTyping }

type ChannelStopTypingEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (ChannelStopTypingEvent) Kind() EventKind { return KindChannelStopTyping }

type ChannelAckEvent struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	MessageID string `json:"message_id"`
}

func (ChannelAckEvent) Kind() EventKind { return KindChannelAck }

type ServerCreateEvent struct {
	ID       string     `json:"id"`
	Server   *Server    `json:"server"`
	Channels []*Channel `json:"channels"`
}

func (ServerCreateEvent) Kind() EventKind { return KindServerCreate }

type ServerUpdateEvent struct {
	ID    string   `json:"id"`
	Data  Patch    `json:"data"`
	Clear []string `json:"clear"`
}

func (ServerUpdateEvent) Kind() EventKind { return KindServerUpdate }

type ServerDeleteEvent struct {
	ID string `json:"id"`
}

func (ServerDeleteEvent) Kind() EventKind { return KindServerDelete }

type ServerMemberJoinEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (ServerMemberJoinEvent) Kind() EventKind { return KindServerMemberJoin }

type MemberID struct {
	Server string `json:"server"`
	User   string `json:"user"`
}

type ServerMemberUpdateEvent struct {
	ID    MemberID `json:"id"`
	Data  Patch    `json:"data"`
	Clear []string `json:"clear"`
}

func (ServerMemberUpdateEvent) Kind() EventKind { return KindServerMemberUpdate }

type ServerMemberLeaveEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (ServerMemberLeaveEvent) Kind() EventKind { return KindServerMemberLeave }

// ServerRoleUpdateEvent patches, or creates, the role RoleID of server ID.
type ServerRoleUpdateEvent struct {
	ID     string   `json:"id"`
	RoleID string   `json:"role_id"`
	Data   Patch    `json:"data"`
	Clear  []string `json:"clear"`
}

func (ServerRoleUpdateEvent) Kind() EventKind { return KindServerRoleUpdate }

type ServerRoleDeleteEvent struct {
	ID     string `json:"id"`
	RoleID string `json:"role_id"`
}

func (ServerRoleDeleteEvent) Kind() EventKind { return KindServerRoleDelete }

// UserUpdateEvent patches a user. Fields named in Clear are reset after
// Data is applied, so Clear wins when both name the same field.
type UserUpdateEvent struct {
	ID    string   `json:"id"`
	Data  Patch    `json:"data"`
	Clear []string `json:"clear"`
}

func (UserUpdateEvent) Kind() EventKind { return KindUserUpdate }

// UserRelationshipEvent reports a new relationship status with User. ID is
// the session user's ID; User is the other user as it was before the change.
type UserRelationshipEvent struct {
	ID     string             `json:"id"`
	User   *User              `json:"user"`
	Status RelationshipStatus `json:"status"`
}

func (UserRelationshipEvent) Kind() EventKind { return KindUserRelationship }

type EmojiCreateEvent struct {
	Emoji *Emoji
}

func (EmojiCreateEvent) Kind() EventKind { return KindEmojiCreate }

type EmojiDeleteEvent struct {
	ID string `json:"id"`
}

func (EmojiDeleteEvent) Kind() EventKind { return KindEmojiDelete }

// GenericEvent carries any event without a typed representation: unknown
// discriminators from a newer server, payloads that failed typed decoding,
// and custom kinds emitted by the application.
type GenericEvent struct {
	Type   EventKind
	Fields map[string]any
}

func (e GenericEvent) Kind() EventKind { return e.Type }
