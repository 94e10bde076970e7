package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/luciancaetano/luster"
)

const (
	// MaxFrameSize is the largest encoded frame accepted in either direction.
	MaxFrameSize = 10 * 1024 * 1024 // 10MB

	// Version is the events protocol version sent on connect.
	Version = 1
)

// Outbound frame types.
const (
	TypeAuthenticate = "Authenticate"
	TypePing         = "Ping"
	TypeBeginTyping  = "BeginTyping"
	TypeEndTyping    = "EndTyping"
)

// Frame is one decoded message in its raw structured form: field names to
// values, before typed interpretation. Every valid frame has a string
// "type" field.
type Frame map[string]any

// Type returns the frame's discriminator, or "" when it has none.
func (f Frame) Type() string {
	s, _ := f["type"].(string)
	return s
}

// String returns the string field key, or "" when absent or not a string.
func (f Frame) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Int64 returns the integer field key. Both codecs are handled: JSON numbers
// arrive as json.Number and msgpack integers as int64 or uint64.
func (f Frame) Int64(key string) (int64, bool) {
	return toInt64(f[key])
}

// Decode interprets the frame as v, which must be a pointer to a struct
// with json tags.
func (f Frame) Decode(v any) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("%w: %v", luster.ErrMalformedFrame, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", luster.ErrMalformedFrame, f.Type(), err)
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Authenticate builds the frame that opens the handshake.
func Authenticate(token string) Frame {
	return Frame{"type": TypeAuthenticate, "token": token}
}

// Ping builds a heartbeat frame. The server echoes data back in a Pong.
func Ping(data int64) Frame {
	return Frame{"type": TypePing, "data": data}
}

func BeginTyping(channelID string) Frame {
	return Frame{"type": TypeBeginTyping, "channel": channelID}
}

func EndTyping(channelID string) Frame {
	return Frame{"type": TypeEndTyping, "channel": channelID}
}

// Flatten expands Bulk frames, recursively, into the frames they carry in
// their original order. Any other frame is returned as is.
func Flatten(f Frame) ([]Frame, error) {
	if f.Type() != string(luster.KindBulk) {
		return []Frame{f}, nil
	}

	items, ok := f["v"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: Bulk frame without a list in v", luster.ErrMalformedFrame)
	}

	out := make([]Frame, 0, len(items))
	for i, item := range items {
		inner, ok := asFrame(item)
		if !ok {
			return nil, fmt.Errorf("%w: Bulk item %d is not a frame", luster.ErrMalformedFrame, i)
		}
		expanded, err := Flatten(inner)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func asFrame(v any) (Frame, bool) {
	var f Frame
	switch m := v.(type) {
	case Frame:
		f = m
	case map[string]any:
		f = Frame(m)
	default:
		return nil, false
	}
	if f.Type() == "" {
		return nil, false
	}
	return f, true
}
