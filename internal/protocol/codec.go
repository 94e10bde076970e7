package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/luciancaetano/luster"
)

// Format is the wire encoding negotiated at connect time.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatMsgpack:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown wire format %q", s)
	}
}

// Codec converts between frames and websocket message payloads.
type Codec interface {
	Format() Format
	// MessageType is the websocket message type frames are written with.
	MessageType() int
	Encode(f Frame) ([]byte, error)
	// Decode returns an error wrapping luster.ErrMalformedFrame or
	// luster.ErrFrameTooLarge for data that is not a valid frame.
	Decode(data []byte) (Frame, error)
}

// NewCodec returns the codec for the given format.
func NewCodec(format Format) (Codec, error) {
	switch format {
	case FormatJSON:
		return jsonCodec{}, nil
	case FormatMsgpack:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown wire format %q", format)
	}
}

type jsonCodec struct{}

func (jsonCodec) Format() Format   { return FormatJSON }
func (jsonCodec) MessageType() int { return websocket.TextMessage }

func (jsonCodec) Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type(), err)
	}
	return checkSize(data)
}

func (jsonCodec) Decode(data []byte) (Frame, error) {
	if _, err := checkSize(data); err != nil {
		return nil, err
	}

	// UseNumber keeps large integers such as ping timestamps exact.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var f Frame
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", luster.ErrMalformedFrame, err)
	}
	return validate(f)
}

type msgpackCodec struct{}

func (msgpackCodec) Format() Format   { return FormatMsgpack }
func (msgpackCodec) MessageType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(map[string]any(f)); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type(), err)
	}
	return checkSize(buf.Bytes())
}

func (msgpackCodec) Decode(data []byte) (Frame, error) {
	if _, err := checkSize(data); err != nil {
		return nil, err
	}

	// Loose decoding yields int64/uint64/float64 instead of the smallest
	// integer type, and string-keyed maps for nested objects.
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", luster.ErrMalformedFrame, err)
	}
	return validate(Frame(m))
}

func checkSize(data []byte) ([]byte, error) {
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds maximum %d bytes", luster.ErrFrameTooLarge, len(data), MaxFrameSize)
	}
	return data, nil
}

func validate(f Frame) (Frame, error) {
	if f == nil || f.Type() == "" {
		return nil, fmt.Errorf("%w: missing type discriminator", luster.ErrMalformedFrame)
	}
	return f, nil
}
