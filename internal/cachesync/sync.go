// Package cachesync keeps a luster.Cache in step with the events stream.
package cachesync

import (
	"fmt"
	"slices"

	"github.com/luciancaetano/luster"
)

// Synchronizer maps each event to its cache mutation. Entities taken from
// events are cloned before insertion so events stay untouched. It is called from
// the dispatch goroutine only, so mutations never interleave.
type Synchronizer struct {
	cache   luster.Cache
	fetcher luster.Fetcher
}

// New returns a synchronizer writing to cache. Entities it inserts are bound
// to fetcher, which may be nil.
func New(cache luster.Cache, fetcher luster.Fetcher) *Synchronizer {
	return &Synchronizer{cache: cache, fetcher: fetcher}
}

// Apply performs the mutation for ev. Events without a cache effect are
// ignored. An error means the event could not be applied; the cache is
// left as it was for that entity.
func (s *Synchronizer) Apply(ev luster.Event) error {
	switch ev := ev.(type) {
	case luster.ReadyEvent:
		s.ready(ev)
	case luster.ServerCreateEvent:
		return s.serverCreate(ev)
	case luster.ChannelCreateEvent:
		if ev.Channel == nil {
			return fmt.Errorf("cachesync: ChannelCreate without a channel")
		}
		s.putChannel(ev.Channel.Clone())
	case luster.UserUpdateEvent:
		return s.userUpdate(ev)
	case luster.ServerUpdateEvent:
		return s.serverUpdate(ev)
	case luster.ChannelUpdateEvent:
		return s.channelUpdate(ev)
	case luster.ServerRoleUpdateEvent:
		return s.roleUpdate(ev)
	case luster.ServerRoleDeleteEvent:
		s.roleDelete(ev)
	case luster.ServerDeleteEvent:
		s.serverDelete(ev.ID)
	case luster.ChannelDeleteEvent:
		s.cache.Channels().Delete(ev.ID)
	case luster.ChannelGroupJoinEvent:
		s.groupMembers(ev.ID, func(recipients []string) []string {
			if slices.Contains(recipients, ev.User) {
				return recipients
			}
			return append(recipients, ev.User)
		})
	case luster.ChannelGroupLeaveEvent:
		s.groupMembers(ev.ID, func(recipients []string) []string {
			return slices.DeleteFunc(recipients, func(id string) bool { return id == ev.User })
		})
	case luster.UserRelationshipEvent:
		s.relationship(ev)
	}
	return nil
}

func (s *Synchronizer) ready(ev luster.ReadyEvent) {
	for _, user := range ev.Users {
		if user != nil {
			s.putUser(user.Clone())
		}
	}
	for _, server := range ev.Servers {
		if server != nil {
			s.putServer(server.Clone())
		}
	}
	for _, channel := range ev.Channels {
		if channel != nil {
			s.putChannel(channel.Clone())
		}
	}
}

func (s *Synchronizer) serverCreate(ev luster.ServerCreateEvent) error {
	if ev.Server == nil {
		return fmt.Errorf("cachesync: ServerCreate %s without a server", ev.ID)
	}
	s.putServer(ev.Server.Clone())
	for _, channel := range ev.Channels {
		if channel != nil {
			s.putChannel(channel.Clone())
		}
	}
	return nil
}

func (s *Synchronizer) userUpdate(ev luster.UserUpdateEvent) error {
	current, ok := s.cache.Users().Get(ev.ID)
	if !ok {
		return nil
	}
	updated, err := update(current, ev.Data, ev.Clear, userClears)
	if err != nil {
		return fmt.Errorf("cachesync: UserUpdate %s: %w", ev.ID, err)
	}
	updated.ID = current.ID
	s.putUser(updated)
	return nil
}

func (s *Synchronizer) serverUpdate(ev luster.ServerUpdateEvent) error {
	current, ok := s.cache.Servers().Get(ev.ID)
	if !ok {
		return nil
	}
	updated, err := update(current, ev.Data, ev.Clear, serverClears)
	if err != nil {
		return fmt.Errorf("cachesync: ServerUpdate %s: %w", ev.ID, err)
	}
	updated.ID = current.ID
	s.putServer(updated)
	return nil
}

func (s *Synchronizer) channelUpdate(ev luster.ChannelUpdateEvent) error {
	current, ok := s.cache.Channels().Get(ev.ID)
	if !ok {
		return nil
	}
	updated, err := update(current, ev.Data, ev.Clear, channelClears)
	if err != nil {
		return fmt.Errorf("cachesync: ChannelUpdate %s: %w", ev.ID, err)
	}
	updated.ID = current.ID
	s.putChannel(updated)
	return nil
}

// roleUpdate patches a role of a cached server; the role is created when
// the server does not know it yet.
func (s *Synchronizer) roleUpdate(ev luster.ServerRoleUpdateEvent) error {
	current, ok := s.cache.Servers().Get(ev.ID)
	if !ok {
		return nil
	}
	role, ok := current.Roles[ev.RoleID]
	if !ok {
		role = &luster.Role{}
	}
	updated, err := update(role, ev.Data, ev.Clear, roleClears)
	if err != nil {
		return fmt.Errorf("cachesync: ServerRoleUpdate %s/%s: %w", ev.ID, ev.RoleID, err)
	}

	server := current.Clone()
	if server.Roles == nil {
		server.Roles = make(map[string]*luster.Role)
	}
	server.Roles[ev.RoleID] = updated
	s.putServer(server)
	return nil
}

func (s *Synchronizer) roleDelete(ev luster.ServerRoleDeleteEvent) {
	current, ok := s.cache.Servers().Get(ev.ID)
	if !ok {
		return
	}
	if _, ok := current.Roles[ev.RoleID]; !ok {
		return
	}
	server := current.Clone()
	delete(server.Roles, ev.RoleID)
	s.putServer(server)
}

// serverDelete removes the server and every cached channel that belongs to
// it.
func (s *Synchronizer) serverDelete(id string) {
	channels := s.cache.Channels()
	if server, ok := s.cache.Servers().Get(id); ok {
		for _, channelID := range server.Channels {
			channels.Delete(channelID)
		}
	}
	for _, channel := range channels.All() {
		if channel.Server == id {
			channels.Delete(channel.ID)
		}
	}
	s.cache.Servers().Delete(id)
}

func (s *Synchronizer) groupMembers(channelID string, edit func([]string) []string) {
	current, ok := s.cache.Channels().Get(channelID)
	if !ok {
		return
	}
	channel := current.Clone()
	channel.Recipients = edit(channel.Recipients)
	s.putChannel(channel)
}

// relationship records the new status on the other user. The event carries
// that user, so it is inserted when not cached yet.
func (s *Synchronizer) relationship(ev luster.UserRelationshipEvent) {
	if ev.User == nil {
		return
	}
	current, ok := s.cache.Users().Get(ev.User.ID)
	if !ok {
		current = ev.User
	}
	user := current.Clone()
	user.Relationship = ev.Status
	s.putUser(user)
}

func (s *Synchronizer) putUser(u *luster.User) {
	u.Bind(s.fetcher)
	s.cache.Users().Put(u)
}

func (s *Synchronizer) putServer(server *luster.Server) {
	server.Bind(s.fetcher)
	s.cache.Servers().Put(server)
}

func (s *Synchronizer) putChannel(c *luster.Channel) {
	c.Bind(s.fetcher)
	s.cache.Channels().Put(c)
}
