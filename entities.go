package luster

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Presence is a user's presence state.
type Presence string

const (
	PresenceOnline    Presence = "Online"
	PresenceIdle      Presence = "Idle"
	PresenceFocus     Presence = "Focus"
	PresenceBusy      Presence = "Busy"
	PresenceInvisible Presence = "Invisible"
)

// RelationshipStatus is the relationship of the session's user with another
// user.
type RelationshipStatus string

const (
	RelationshipNone         RelationshipStatus = "None"
	RelationshipUser         RelationshipStatus = "User"
	RelationshipFriend       RelationshipStatus = "Friend"
	RelationshipOutgoing     RelationshipStatus = "Outgoing"
	RelationshipIncoming     RelationshipStatus = "Incoming"
	RelationshipBlocked      RelationshipStatus = "Blocked"
	RelationshipBlockedOther RelationshipStatus = "BlockedOther"
)

// Channel types.
const (
	ChannelTypeSavedMessages = "SavedMessages"
	ChannelTypeDirectMessage = "DirectMessage"
	ChannelTypeGroup         = "Group"
	ChannelTypeText          = "TextChannel"
	ChannelTypeVoice         = "VoiceChannel"
)

// FileMetadata describes the kind of an uploaded file.
type FileMetadata struct {
	Type   string `json:"type"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// File is an asset hosted on the file server.
type File struct {
	ID          string       `json:"_id"`
	Tag         string       `json:"tag"`
	Filename    string       `json:"filename"`
	Metadata    FileMetadata `json:"metadata"`
	ContentType string       `json:"content_type"`
	Size        int64        `json:"size"`
	Deleted     bool         `json:"deleted,omitempty"`
	Reported    bool         `json:"reported,omitempty"`
	MessageID   string       `json:"message_id,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	ServerID    string       `json:"server_id,omitempty"`
	ObjectID    string       `json:"object_id,omitempty"`
}

func (f *File) clone() *File {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

type UserStatus struct {
	Text     string   `json:"text,omitempty"`
	Presence Presence `json:"presence,omitempty"`
}

type UserProfile struct {
	Content    string `json:"content,omitempty"`
	Background *File  `json:"background,omitempty"`
}

type Relationship struct {
	ID     string             `json:"_id"`
	Status RelationshipStatus `json:"status"`
}

// BotInfo is set on users that are bots.
type BotInfo struct {
	Owner string `json:"owner"`
}

// User is a cached user.
type User struct {
	ID           string             `json:"_id"`
	Username     string             `json:"username"`
	DisplayName  string             `json:"display_name,omitempty"`
	Avatar       *File              `json:"avatar,omitempty"`
	Relations    []Relationship     `json:"relations,omitempty"`
	Badges       int64              `json:"badges,omitempty"`
	Status       *UserStatus        `json:"status,omitempty"`
	Profile      *UserProfile       `json:"profile,omitempty"`
	Flags        int64              `json:"flags,omitempty"`
	Privileged   bool               `json:"privileged,omitempty"`
	Bot          *BotInfo           `json:"bot,omitempty"`
	Relationship RelationshipStatus `json:"relationship,omitempty"`
	Online       bool               `json:"online,omitempty"`

	fetcher Fetcher
}

func (u *User) EntityID() string { return u.ID }

// Bind attaches the handle used by the Fetch methods.
func (u *User) Bind(f Fetcher) { u.fetcher = f }

// Clone returns a deep copy that shares no mutable state with u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Avatar = u.Avatar.clone()
	c.Relations = slices.Clone(u.Relations)
	if u.Status != nil {
		status := *u.Status
		c.Status = &status
	}
	if u.Profile != nil {
		profile := *u.Profile
		profile.Background = u.Profile.Background.clone()
		c.Profile = &profile
	}
	if u.Bot != nil {
		bot := *u.Bot
		c.Bot = &bot
	}
	return &c
}

// FetchProfile fetches the user's profile. Profiles are never part of the
// events stream, so this always goes over HTTP.
func (u *User) FetchProfile(ctx context.Context) (*UserProfile, error) {
	if u.fetcher == nil {
		return nil, ErrDetached
	}
	return u.fetcher.FetchProfile(ctx, u.ID)
}

type Permissions struct {
	Allow int64 `json:"a"`
	Deny  int64 `json:"d"`
}

type Role struct {
	Name        string      `json:"name"`
	Permissions Permissions `json:"permissions"`
	Colour      string      `json:"colour,omitempty"`
	Hoist       bool        `json:"hoist,omitempty"`
	Rank        int64       `json:"rank,omitempty"`
}

type Category struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Channels []string `json:"channels"`
}

// SystemMessages names the channels that receive membership notices.
type SystemMessages struct {
	UserJoined string `json:"user_joined,omitempty"`
	UserLeft   string `json:"user_left,omitempty"`
	UserKicked string `json:"user_kicked,omitempty"`
	UserBanned string `json:"user_banned,omitempty"`
}

// Server is a cached server. Roles are keyed by role ID.
type Server struct {
	ID                 string           `json:"_id"`
	Owner              string           `json:"owner"`
	Name               string           `json:"name"`
	Description        string           `json:"description,omitempty"`
	Channels           []string         `json:"channels,omitempty"`
	Categories         []Category       `json:"categories,omitempty"`
	SystemMessages     *SystemMessages  `json:"system_messages,omitempty"`
	Roles              map[string]*Role `json:"roles,omitempty"`
	DefaultPermissions int64            `json:"default_permissions,omitempty"`
	Icon               *File            `json:"icon,omitempty"`
	Banner             *File            `json:"banner,omitempty"`
	Flags              int64            `json:"flags,omitempty"`
	NSFW               bool             `json:"nsfw,omitempty"`
	Analytics          bool             `json:"analytics,omitempty"`
	Discoverable       bool             `json:"discoverable,omitempty"`

	fetcher Fetcher
}

func (s *Server) EntityID() string { return s.ID }

func (s *Server) Bind(f Fetcher) { s.fetcher = f }

func (s *Server) Clone() *Server {
	if s == nil {
		return nil
	}
	c := *s
	c.Channels = slices.Clone(s.Channels)
	if s.Categories != nil {
		c.Categories = make([]Category, len(s.Categories))
		for i, category := range s.Categories {
			category.Channels = slices.Clone(category.Channels)
			c.Categories[i] = category
		}
	}
	if s.SystemMessages != nil {
		sm := *s.SystemMessages
		c.SystemMessages = &sm
	}
	if s.Roles != nil {
		c.Roles = make(map[string]*Role, len(s.Roles))
		for id, role := range s.Roles {
			r := *role
			c.Roles[id] = &r
		}
	}
	c.Icon = s.Icon.clone()
	c.Banner = s.Banner.clone()
	return &c
}

// FetchOwner fetches the server owner over HTTP.
func (s *Server) FetchOwner(ctx context.Context) (*User, error) {
	if s.fetcher == nil {
		return nil, ErrDetached
	}
	return s.fetcher.FetchUser(ctx, s.Owner)
}

// Channel is a cached channel of any type. Which fields are meaningful
// depends on ChannelType: Server, Name and the permission fields belong to
// server channels, Recipients and Owner to groups and direct messages.
type Channel struct {
	ID                 string                 `json:"_id"`
	ChannelType        string                 `json:"channel_type"`
	Server             string                 `json:"server,omitempty"`
	Name               string                 `json:"name,omitempty"`
	Description        string                 `json:"description,omitempty"`
	Icon               *File                  `json:"icon,omitempty"`
	DefaultPermissions *Permissions           `json:"default_permissions,omitempty"`
	RolePermissions    map[string]Permissions `json:"role_permissions,omitempty"`
	NSFW               bool                   `json:"nsfw,omitempty"`
	Recipients         []string               `json:"recipients,omitempty"`
	Active             bool                   `json:"active,omitempty"`
	Owner              string                 `json:"owner,omitempty"`
	User               string                 `json:"user,omitempty"`
	Permissions        int64                  `json:"permissions,omitempty"`
	LastMessageID      string                 `json:"last_message_id,omitempty"`

	fetcher Fetcher
}

func (c *Channel) EntityID() string { return c.ID }

func (c *Channel) Bind(f Fetcher) { c.fetcher = f }

func (c *Channel) Clone() *Channel {
	if c == nil {
		return nil
	}
	out := *c
	out.Icon = c.Icon.clone()
	if c.DefaultPermissions != nil {
		p := *c.DefaultPermissions
		out.DefaultPermissions = &p
	}
	out.RolePermissions = maps.Clone(c.RolePermissions)
	out.Recipients = slices.Clone(c.Recipients)
	return &out
}

// FetchServer fetches the server a server channel belongs to.
func (c *Channel) FetchServer(ctx context.Context) (*Server, error) {
	if c.fetcher == nil {
		return nil, ErrDetached
	}
	if c.Server == "" {
		return nil, fmt.Errorf("luster: channel %s (%s) does not belong to a server", c.ID, c.ChannelType)
	}
	return c.fetcher.FetchServer(ctx, c.Server)
}

// Message is a chat message as carried by Message events. Messages are not
// cached.
type Message struct {
	ID          string   `json:"_id"`
	Nonce       string   `json:"nonce,omitempty"`
	Channel     string   `json:"channel"`
	Author      string   `json:"author"`
	Content     string   `json:"content,omitempty"`
	Attachments []File   `json:"attachments,omitempty"`
	Edited      string   `json:"edited,omitempty"`
	Mentions    []string `json:"mentions,omitempty"`
	Replies     []string `json:"replies,omitempty"`
}

type EmojiParent struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

type Emoji struct {
	ID        string      `json:"_id"`
	Parent    EmojiParent `json:"parent"`
	CreatorID string      `json:"creator_id"`
	Name      string      `json:"name"`
	Animated  bool        `json:"animated,omitempty"`
	NSFW      bool        `json:"nsfw,omitempty"`
}
