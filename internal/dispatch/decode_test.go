package dispatch

import (
	"errors"
	"testing"

	"github.com/luciancaetano/luster"
	"github.com/luciancaetano/luster/internal/protocol"
)

func decodeJSON(t *testing.T, raw string) protocol.Frame {
	t.Helper()
	codec, _ := protocol.NewCodec(protocol.FormatJSON)
	f, err := codec.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("codec.Decode(%s) failed: %v", raw, err)
	}
	return f
}

// TestDecodeKinds tests typed decoding of the built-in discriminators
func TestDecodeKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, ev luster.Event)
	}{
		{
			name: "error",
			raw:  `{"type":"Error","error":"InvalidSession"}`,
			check: func(t *testing.T, ev luster.Event) {
				if e := ev.(luster.ErrorEvent); e.Label != luster.LabelInvalidSession {
					t.Errorf("Label = %q", e.Label)
				}
			},
		},
		{
			name: "pong",
			raw:  `{"type":"Pong","data":1700000000123}`,
			check: func(t *testing.T, ev luster.Event) {
				if e := ev.(luster.PongEvent); e.Data != 1700000000123 {
					t.Errorf("Data = %d", e.Data)
				}
			},
		},
		{
			name: "ready",
			raw:  `{"type":"Ready","users":[{"_id":"U1","username":"a"}],"servers":[],"channels":[{"_id":"C1","channel_type":"Group","recipients":["U1"]}]}`,
			check: func(t *testing.T, ev luster.Event) {
				e := ev.(luster.ReadyEvent)
				if len(e.Users) != 1 || e.Users[0].Username != "a" {
					t.Errorf("Users = %+v", e.Users)
				}
				if len(e.Channels) != 1 || e.Channels[0].ChannelType != luster.ChannelTypeGroup {
					t.Errorf("Channels = %+v", e.Channels)
				}
			},
		},
		{
			name: "message inline",
			raw:  `{"type":"Message","_id":"M1","channel":"C1","author":"U1","content":"hello"}`,
			check: func(t *testing.T, ev luster.Event) {
				e := ev.(luster.MessageEvent)
				if e.Message.ID != "M1" || e.Message.Content != "hello" {
					t.Errorf("Message = %+v", e.Message)
				}
			},
		},
		{
			name: "channel create inline",
			raw:  `{"type":"ChannelCreate","_id":"C2","channel_type":"TextChannel","server":"S1","name":"general"}`,
			check: func(t *testing.T, ev luster.Event) {
				e := ev.(luster.ChannelCreateEvent)
				if e.Channel.ID != "C2" || e.Channel.Server != "S1" {
					t.Errorf("Channel = %+v", e.Channel)
				}
			},
		},
		{
			name: "user update",
			raw:  `{"type":"UserUpdate","id":"U1","data":{"username":"b"},"clear":["Avatar"]}`,
			check: func(t *testing.T, ev luster.Event) {
				e := ev.(luster.UserUpdateEvent)
				if e.ID != "U1" || e.Data["username"] != "b" || len(e.Clear) != 1 {
					t.Errorf("event = %+v", e)
				}
			},
		},
		{
			name: "legacy remove",
			raw:  `{"type":"ChannelUpdate","id":"C1","data":{},"remove":["Icon"]}`,
			check: func(t *testing.T, ev luster.Event) {
				e := ev.(luster.ChannelUpdateEvent)
				if len(e.Clear) != 1 || e.Clear[0] != "Icon" {
					t.Errorf("Clear = %v, want [Icon]", e.Clear)
				}
			},
		},
		{
			name: "legacy removed",
			raw:  `{"type":"UserUpdate","id":"U1","data":{},"removed":["StatusText","Avatar"]}`,
			check: func(t *testing.T, ev luster.Event) {
				e := ev.(luster.UserUpdateEvent)
				if len(e.Clear) != 2 || e.Clear[0] != "StatusText" || e.Clear[1] != "Avatar" {
					t.Errorf("Clear = %v, want [StatusText Avatar]", e.Clear)
				}
			},
		},
		{
			name: "member update",
			raw:  `{"type":"ServerMemberUpdate","id":{"server":"S1","user":"U1"},"data":{"nickname":"n"},"clear":[]}`,
			check: func(t *testing.T, ev luster.Event) {
				e := ev.(luster.ServerMemberUpdateEvent)
				if e.ID.Server != "S1" || e.ID.User != "U1" {
					t.Errorf("ID = %+v", e.ID)
				}
			},
		},
		{
			name: "role update",
			raw:  `{"type":"ServerRoleUpdate","id":"S1","role_id":"R1","data":{"name":"mods"},"clear":["Colour"]}`,
			check: func(t *testing.T, ev luster.Event) {
				e := ev.(luster.ServerRoleUpdateEvent)
				if e.RoleID != "R1" {
					t.Errorf("RoleID = %q", e.RoleID)
				}
			},
		},
		{
			name: "relationship",
			raw:  `{"type":"UserRelationship","id":"ME","user":{"_id":"U2","username":"x"},"status":"Friend"}`,
			check: func(t *testing.T, ev luster.Event) {
				e := ev.(luster.UserRelationshipEvent)
				if e.Status != luster.RelationshipFriend || e.User.ID != "U2" {
					t.Errorf("event = %+v", e)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			events, err := Decode(decodeJSON(t, tt.raw))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("Decode() returned %d events, want 1", len(events))
			}
			tt.check(t, events[0])
		})
	}
}

// TestDecodeBulk tests that Bulk frames expand in order
func TestDecodeBulk(t *testing.T) {
	t.Parallel()

	events, err := Decode(decodeJSON(t, `{"type":"Bulk","v":[
		{"type":"UserUpdate","id":"U1","data":{}},
		{"type":"ChannelDelete","id":"C1"},
		{"type":"Bulk","v":[{"type":"Pong","data":5}]}
	]}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := []luster.EventKind{luster.KindUserUpdate, luster.KindChannelDelete, luster.KindPong}
	if len(events) != len(want) {
		t.Fatalf("Decode() returned %d events, want %d", len(events), len(want))
	}
	for i, kind := range want {
		if events[i].Kind() != kind {
			t.Errorf("event %d kind = %s, want %s", i, events[i].Kind(), kind)
		}
	}
}

// TestDecodeUnknownKind tests that unknown discriminators pass through as generic events
func TestDecodeUnknownKind(t *testing.T) {
	t.Parallel()

	events, err := Decode(decodeJSON(t, `{"type":"VoiceChannelJoin","id":"C1"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	ev, ok := events[0].(luster.GenericEvent)
	if !ok {
		t.Fatalf("event = %T, want GenericEvent", events[0])
	}
	if ev.Kind() != "VoiceChannelJoin" || ev.Fields["id"] != "C1" {
		t.Errorf("event = %+v", ev)
	}
}

// TestDecodeDegradesBadPayload tests that a known kind with a broken payload is still delivered
func TestDecodeDegradesBadPayload(t *testing.T) {
	t.Parallel()

	events, err := Decode(decodeJSON(t, `{"type":"Bulk","v":[
		{"type":"UserUpdate","id":42},
		{"type":"ChannelDelete","id":"C1"}
	]}`))
	if !errors.Is(err, luster.ErrMalformedFrame) {
		t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
	}
	if len(events) != 2 {
		t.Fatalf("Decode() returned %d events, want 2", len(events))
	}
	if _, ok := events[0].(luster.GenericEvent); !ok || events[0].Kind() != luster.KindUserUpdate {
		t.Errorf("event 0 = %#v, want GenericEvent of kind UserUpdate", events[0])
	}
	if _, ok := events[1].(luster.ChannelDeleteEvent); !ok {
		t.Errorf("event 1 = %T, want ChannelDeleteEvent", events[1])
	}
}

// TestDecodeBrokenBulk tests that an unexpandable Bulk frame yields nothing
func TestDecodeBrokenBulk(t *testing.T) {
	t.Parallel()

	events, err := Decode(protocol.Frame{"type": "Bulk", "v": "nope"})
	if !errors.Is(err, luster.ErrMalformedFrame) {
		t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
	}
	if len(events) != 0 {
		t.Errorf("Decode() returned %d events, want 0", len(events))
	}
}
