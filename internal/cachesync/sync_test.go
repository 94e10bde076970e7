package cachesync

import (
	"encoding/json"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/luciancaetano/luster"
	"github.com/luciancaetano/luster/cache"
)

func newSynchronizer() (*Synchronizer, *cache.Memory) {
	c := cache.New()
	return New(c, nil), c
}

func mustApply(t *testing.T, s *Synchronizer, events ...luster.Event) {
	t.Helper()
	for _, ev := range events {
		if err := s.Apply(ev); err != nil {
			t.Fatalf("Apply(%s) failed: %v", ev.Kind(), err)
		}
	}
}

// TestReadyThenUserUpdate covers the bootstrap-then-patch scenario
func TestReadyThenUserUpdate(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	mustApply(t, s,
		luster.ReadyEvent{Users: []*luster.User{{ID: "U1", Username: "a"}}},
		luster.UserUpdateEvent{ID: "U1", Data: luster.Patch{"username": "b"}, Clear: []string{}},
	)

	user, ok := c.Users().Get("U1")
	if !ok {
		t.Fatal("U1 not cached")
	}
	if user.Username != "b" {
		t.Errorf("Username = %q, want %q", user.Username, "b")
	}
}

// TestClearResetsOnlyNamedField covers clearing a field by its wire name
func TestClearResetsOnlyNamedField(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	c.Users().Put(&luster.User{
		ID:       "U1",
		Username: "a",
		Status:   &luster.UserStatus{Presence: luster.PresenceOnline},
	})

	mustApply(t, s, luster.UserUpdateEvent{ID: "U1", Data: luster.Patch{}, Clear: []string{"status"}})

	user, _ := c.Users().Get("U1")
	if user.Status != nil {
		t.Errorf("Status = %+v, want nil", user.Status)
	}
	if user.Username != "a" {
		t.Errorf("Username = %q, want %q", user.Username, "a")
	}
}

// TestClearLabels tests the server's removed-field labels for each kind
func TestClearLabels(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	c.Users().Put(&luster.User{
		ID:      "U1",
		Avatar:  &luster.File{ID: "F1"},
		Status:  &luster.UserStatus{Text: "busy day", Presence: luster.PresenceBusy},
		Profile: &luster.UserProfile{Content: "bio", Background: &luster.File{ID: "F2"}},
	})
	c.Servers().Put(&luster.Server{ID: "S1", Description: "d", Icon: &luster.File{ID: "F3"}, Name: "keep"})
	c.Channels().Put(&luster.Channel{ID: "C1", Description: "d", DefaultPermissions: &luster.Permissions{Allow: 1}})

	mustApply(t, s,
		luster.UserUpdateEvent{ID: "U1", Clear: []string{"Avatar", "StatusText", "ProfileBackground"}},
		luster.ServerUpdateEvent{ID: "S1", Clear: []string{"Description", "Icon"}},
		luster.ChannelUpdateEvent{ID: "C1", Clear: []string{"DefaultPermissions"}},
	)

	user, _ := c.Users().Get("U1")
	if user.Avatar != nil {
		t.Error("Avatar not cleared")
	}
	if user.Status == nil || user.Status.Text != "" || user.Status.Presence != luster.PresenceBusy {
		t.Errorf("Status = %+v, want text cleared and presence kept", user.Status)
	}
	if user.Profile == nil || user.Profile.Background != nil || user.Profile.Content != "bio" {
		t.Errorf("Profile = %+v, want background cleared and content kept", user.Profile)
	}

	server, _ := c.Servers().Get("S1")
	if server.Description != "" || server.Icon != nil || server.Name != "keep" {
		t.Errorf("server = %+v", server)
	}

	channel, _ := c.Channels().Get("C1")
	if channel.DefaultPermissions != nil || channel.Description != "d" {
		t.Errorf("channel = %+v", channel)
	}
}

// TestClearTakesPrecedenceOverPatch tests a field both patched and cleared
func TestClearTakesPrecedenceOverPatch(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	c.Users().Put(&luster.User{ID: "U1", Username: "a"})

	mustApply(t, s, luster.UserUpdateEvent{
		ID:    "U1",
		Data:  luster.Patch{"avatar": map[string]any{"_id": "F1", "tag": "avatars"}, "display_name": "Alpha"},
		Clear: []string{"Avatar", "display_name"},
	})

	user, _ := c.Users().Get("U1")
	if user.Avatar != nil {
		t.Errorf("Avatar = %+v, want nil", user.Avatar)
	}
	if user.DisplayName != "" {
		t.Errorf("DisplayName = %q, want empty", user.DisplayName)
	}
}

// TestPatchReplacesTopLevelFields tests that a patched object replaces the cached one wholesale
func TestPatchReplacesTopLevelFields(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	c.Users().Put(&luster.User{ID: "U1", Username: "a", Status: &luster.UserStatus{Text: "old", Presence: luster.PresenceIdle}})

	mustApply(t, s, luster.UserUpdateEvent{ID: "U1", Data: luster.Patch{"status": map[string]any{"presence": "Online"}}})

	user, _ := c.Users().Get("U1")
	if user.Status == nil || user.Status.Presence != luster.PresenceOnline || user.Status.Text != "" {
		t.Errorf("Status = %+v, want {Presence: Online}", user.Status)
	}
	if user.Username != "a" {
		t.Errorf("Username = %q, want unchanged", user.Username)
	}
}

// TestUpdateDoesNotMutatePreviousEntity tests that listeners holding the old pointer see no change
func TestUpdateDoesNotMutatePreviousEntity(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	before := &luster.User{ID: "U1", Username: "a", Status: &luster.UserStatus{Text: "t"}}
	c.Users().Put(before)

	mustApply(t, s, luster.UserUpdateEvent{ID: "U1", Data: luster.Patch{"username": "b"}, Clear: []string{"StatusText"}})

	if before.Username != "a" || before.Status.Text != "t" {
		t.Errorf("previous entity was mutated: %+v %+v", before, before.Status)
	}
	after, _ := c.Users().Get("U1")
	if after == before {
		t.Error("update should store a new entity")
	}
}

// TestUpdateUncachedIsNoop tests updates for entities the cache does not hold
func TestUpdateUncachedIsNoop(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	mustApply(t, s,
		luster.UserUpdateEvent{ID: "ghost", Data: luster.Patch{"username": "x"}},
		luster.ServerUpdateEvent{ID: "ghost", Data: luster.Patch{"name": "x"}},
		luster.ChannelUpdateEvent{ID: "ghost", Data: luster.Patch{"name": "x"}},
		luster.ServerRoleUpdateEvent{ID: "ghost", RoleID: "R1", Data: luster.Patch{"name": "x"}},
	)

	if len(c.Users().All())+len(c.Servers().All())+len(c.Channels().All()) != 0 {
		t.Error("updates for uncached entities must not insert anything")
	}
}

// TestDeleteAbsentIsIdempotent tests that deleting unknown IDs leaves the cache unchanged
func TestDeleteAbsentIsIdempotent(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	mustApply(t, s, luster.ReadyEvent{
		Servers:  []*luster.Server{{ID: "S1", Channels: []string{"C1"}}},
		Channels: []*luster.Channel{{ID: "C1", Server: "S1"}},
	})

	mustApply(t, s,
		luster.ChannelDeleteEvent{ID: "missing"},
		luster.ServerDeleteEvent{ID: "missing"},
		luster.ServerRoleDeleteEvent{ID: "S1", RoleID: "missing"},
	)

	if _, ok := c.Servers().Get("S1"); !ok {
		t.Error("S1 was removed")
	}
	if _, ok := c.Channels().Get("C1"); !ok {
		t.Error("C1 was removed")
	}
}

// TestServerLifecycle tests create, role changes and cascading delete
func TestServerLifecycle(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	mustApply(t, s, luster.ServerCreateEvent{
		ID:     "S1",
		Server: &luster.Server{ID: "S1", Name: "home", Channels: []string{"C1"}},
		Channels: []*luster.Channel{
			{ID: "C1", ChannelType: luster.ChannelTypeText, Server: "S1"},
		},
	})
	mustApply(t, s, luster.ChannelCreateEvent{Channel: &luster.Channel{ID: "C2", ChannelType: luster.ChannelTypeVoice, Server: "S1"}})

	mustApply(t, s, luster.ServerRoleUpdateEvent{
		ID: "S1", RoleID: "R1",
		Data: luster.Patch{"name": "mods", "colour": "red", "permissions": map[string]any{"a": 8, "d": 0}},
	})
	mustApply(t, s, luster.ServerRoleUpdateEvent{ID: "S1", RoleID: "R1", Data: luster.Patch{"hoist": true}, Clear: []string{"Colour"}})

	server, _ := c.Servers().Get("S1")
	role := server.Roles["R1"]
	if role == nil {
		t.Fatal("role R1 missing")
	}
	if role.Name != "mods" || role.Colour != "" || !role.Hoist || role.Permissions.Allow != 8 {
		t.Errorf("role = %+v", role)
	}

	mustApply(t, s, luster.ServerRoleDeleteEvent{ID: "S1", RoleID: "R1"})
	server, _ = c.Servers().Get("S1")
	if _, ok := server.Roles["R1"]; ok {
		t.Error("role R1 not deleted")
	}

	mustApply(t, s, luster.ServerDeleteEvent{ID: "S1"})
	if _, ok := c.Servers().Get("S1"); ok {
		t.Error("S1 not deleted")
	}
	for _, id := range []string{"C1", "C2"} {
		if _, ok := c.Channels().Get(id); ok {
			t.Errorf("channel %s of deleted server still cached", id)
		}
	}
}

// TestGroupMembership tests recipients bookkeeping for group channels
func TestGroupMembership(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	c.Channels().Put(&luster.Channel{ID: "G1", ChannelType: luster.ChannelTypeGroup, Recipients: []string{"U1"}})

	mustApply(t, s,
		luster.ChannelGroupJoinEvent{ID: "G1", User: "U2"},
		luster.ChannelGroupJoinEvent{ID: "G1", User: "U2"},
		luster.ChannelGroupLeaveEvent{ID: "G1", User: "U1"},
	)

	group, _ := c.Channels().Get("G1")
	if !reflect.DeepEqual(group.Recipients, []string{"U2"}) {
		t.Errorf("Recipients = %v, want [U2]", group.Recipients)
	}
}

// TestRelationship tests relationship status updates on cached and uncached users
func TestRelationship(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	c.Users().Put(&luster.User{ID: "U1", Username: "cached"})

	mustApply(t, s,
		luster.UserRelationshipEvent{ID: "ME", User: &luster.User{ID: "U1", Username: "stale"}, Status: luster.RelationshipFriend},
		luster.UserRelationshipEvent{ID: "ME", User: &luster.User{ID: "U2", Username: "new"}, Status: luster.RelationshipIncoming},
	)

	u1, _ := c.Users().Get("U1")
	if u1.Relationship != luster.RelationshipFriend || u1.Username != "cached" {
		t.Errorf("U1 = %+v", u1)
	}
	u2, ok := c.Users().Get("U2")
	if !ok || u2.Relationship != luster.RelationshipIncoming {
		t.Errorf("U2 = %+v, found %v", u2, ok)
	}
}

// TestEventsWithoutCacheEffect tests that other events leave the cache alone
func TestEventsWithoutCacheEffect(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	mustApply(t, s,
		luster.PongEvent{Data: 1},
		luster.AuthenticatedEvent{},
		luster.MessageEvent{Message: &luster.Message{ID: "M1"}},
		luster.GenericEvent{Type: "Custom"},
	)
	if len(c.Users().All()) != 0 {
		t.Error("cache changed")
	}
}

// TestBrokenPatchReportsError tests that an undecodable patch leaves the entity alone
func TestBrokenPatchReportsError(t *testing.T) {
	t.Parallel()

	s, c := newSynchronizer()
	c.Users().Put(&luster.User{ID: "U1", Username: "a"})

	err := s.Apply(luster.UserUpdateEvent{ID: "U1", Data: luster.Patch{"username": 42}})
	if err == nil {
		t.Fatal("Apply() should fail for a mistyped patch")
	}
	user, _ := c.Users().Get("U1")
	if user.Username != "a" {
		t.Errorf("Username = %q, want unchanged", user.Username)
	}
}

// TestFoldMatchesModel checks random update sequences against a left fold over wire fields
func TestFoldMatchesModel(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	values := map[string][]any{
		"username":     {"a", "b", "c"},
		"display_name": {"Alpha", "Beta"},
		"badges":       {1, 2, 64},
		"online":       {true, false},
		"status":       {map[string]any{"presence": "Online"}, map[string]any{"text": "hi", "presence": "Busy"}},
	}
	var keys []string
	for k := range values {
		keys = append(keys, k)
	}

	for round := 0; round < 200; round++ {
		s, c := newSynchronizer()
		model := map[string]any{"_id": "U1", "username": "seed"}
		mustApply(t, s, luster.ReadyEvent{Users: []*luster.User{{ID: "U1", Username: "seed"}}})

		steps := 1 + rng.IntN(6)
		for i := 0; i < steps; i++ {
			patch := luster.Patch{}
			var clear []string
			for _, k := range keys {
				switch rng.IntN(4) {
				case 0:
					options := values[k]
					patch[k] = options[rng.IntN(len(options))]
				case 1:
					clear = append(clear, k)
				}
			}

			for k, v := range patch {
				model[k] = v
			}
			for _, k := range clear {
				delete(model, k)
			}
			mustApply(t, s, luster.UserUpdateEvent{ID: "U1", Data: patch, Clear: clear})
		}

		data, _ := json.Marshal(model)
		var want luster.User
		if err := json.Unmarshal(data, &want); err != nil {
			t.Fatalf("model decode failed: %v", err)
		}
		got, _ := c.Users().Get("U1")
		gotCopy := got.Clone()
		gotCopy.Bind(nil)
		if !reflect.DeepEqual(*gotCopy, want) {
			t.Fatalf("round %d: cached = %+v, want %+v", round, *gotCopy, want)
		}
	}
}
