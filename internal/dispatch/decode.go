package dispatch

import (
	"errors"
	"fmt"
	"maps"

	"github.com/luciancaetano/luster"
	"github.com/luciancaetano/luster/internal/protocol"
)

type decodeFunc func(protocol.Frame) (luster.Event, error)

// decoders maps every built-in discriminator to its typed decoding. Bulk is
// absent because Decode flattens it before lookup.
var decoders = map[luster.EventKind]decodeFunc{
	luster.KindError:              as[luster.ErrorEvent],
	luster.KindAuthenticated:      as[luster.AuthenticatedEvent],
	luster.KindPong:               as[luster.PongEvent],
	luster.KindReady:              as[luster.ReadyEvent],
	luster.KindMessage:            decodeMessage,
	luster.KindMessageUpdate:      as[luster.MessageUpdateEvent],
	luster.KindMessageAppend:      as[luster.MessageAppendEvent],
	luster.KindMessageDelete:      as[luster.MessageDeleteEvent],
	luster.KindChannelCreate:      decodeChannelCreate,
	luster.KindChannelUpdate:      as[luster.ChannelUpdateEvent],
	luster.KindChannelDelete:      as[luster.ChannelDeleteEvent],
	luster.KindChannelGroupJoin:   as[luster.ChannelGroupJoinEvent],
	luster.KindChannelGroupLeave:  as[luster.ChannelGroupLeaveEvent],
	luster.KindChannelStartTyping: as[luster.ChannelStartTypingEvent],
	luster.KindChannelStopTyping:  as[luster.ChannelStopTypingEvent],
	luster.KindChannelAck:         as[luster.ChannelAckEvent],
	luster.KindServerCreate:       as[luster.ServerCreateEvent],
	luster.KindServerUpdate:       as[luster.ServerUpdateEvent],
	luster.KindServerDelete:       as[luster.ServerDeleteEvent],
	luster.KindServerMemberJoin:   as[luster.ServerMemberJoinEvent],
	luster.KindServerMemberUpdate: as[luster.ServerMemberUpdateEvent],
	luster.KindServerMemberLeave:  as[luster.ServerMemberLeaveEvent],
	luster.KindServerRoleUpdate:   as[luster.ServerRoleUpdateEvent],
	luster.KindServerRoleDelete:   as[luster.ServerRoleDeleteEvent],
	luster.KindUserUpdate:         as[luster.UserUpdateEvent],
	luster.KindUserRelationship:   as[luster.UserRelationshipEvent],
	luster.KindEmojiCreate:        decodeEmojiCreate,
	luster.KindEmojiDelete:        as[luster.EmojiDeleteEvent],
}

// Decode turns one inbound frame into the events it carries, in order. A
// Bulk frame yields its contents; any other frame yields one event.
//
// Decoding never drops a frame: unknown discriminators and payloads that do
// not fit their typed event both come back as luster.GenericEvent. The
// returned error lists the payloads that had to be degraded that way and is
// meant for the diagnostic sink only. A Bulk frame that cannot be expanded
// yields no events and an error wrapping luster.ErrMalformedFrame.
func Decode(f protocol.Frame) ([]luster.Event, error) {
	frames, err := protocol.Flatten(f)
	if err != nil {
		return nil, err
	}

	events := make([]luster.Event, 0, len(frames))
	var errs []error
	for _, frame := range frames {
		ev, err := decodeOne(frame)
		if err != nil {
			errs = append(errs, err)
		}
		events = append(events, ev)
	}
	return events, errors.Join(errs...)
}

func decodeOne(f protocol.Frame) (luster.Event, error) {
	kind := luster.EventKind(f.Type())
	decode, ok := decoders[kind]
	if !ok {
		return generic(f), nil
	}

	ev, err := decode(legacyClear(f))
	if err != nil {
		return generic(f), fmt.Errorf("decode %s: %w", kind, err)
	}
	return ev, nil
}

// legacyClearKeys are the older names of the removed-fields list.
var legacyClearKeys = []string{"remove", "removed"}

// legacyClear accepts the older names of the removed-fields list.
func legacyClear(f protocol.Frame) protocol.Frame {
	if _, ok := f["clear"]; ok {
		return f
	}
	for _, key := range legacyClearKeys {
		removed, ok := f[key]
		if !ok {
			continue
		}
		out := maps.Clone(f)
		out["clear"] = removed
		delete(out, key)
		return out
	}
	return f
}

func generic(f protocol.Frame) luster.GenericEvent {
	return luster.GenericEvent{Type: luster.EventKind(f.Type()), Fields: maps.Clone(map[string]any(f))}
}

func as[E luster.Event](f protocol.Frame) (luster.Event, error) {
	var ev E
	if err := f.Decode(&ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// The frames below carry the object inline next to the type field.

func decodeMessage(f protocol.Frame) (luster.Event, error) {
	var m luster.Message
	if err := f.Decode(&m); err != nil {
		return nil, err
	}
	return luster.MessageEvent{Message: &m}, nil
}

func decodeChannelCreate(f protocol.Frame) (luster.Event, error) {
	var c luster.Channel
	if err := f.Decode(&c); err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, fmt.Errorf("%w: channel without an id", luster.ErrMalformedFrame)
	}
	return luster.ChannelCreateEvent{Channel: &c}, nil
}

func decodeEmojiCreate(f protocol.Frame) (luster.Event, error) {
	var e luster.Emoji
	if err := f.Decode(&e); err != nil {
		return nil, err
	}
	return luster.EmojiCreateEvent{Emoji: &e}, nil
}
