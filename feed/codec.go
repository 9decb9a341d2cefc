package feed

import "fmt"

// Codec serializes frames for the wire.
type Codec interface {
	// Encode serializes a frame into bytes.
	Encode(frame *Frame) ([]byte, error)

	// Decode deserializes bytes into a frame.
	Decode(data []byte) (*Frame, error)

	// Name returns the codec identifier used during negotiation.
	Name() string

	// Binary reports whether encoded frames must travel in binary
	// WebSocket messages rather than text.
	Binary() bool
}

// GetCodec returns the codec for the given name. An empty name defaults
// to JSON.
func GetCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec: %q", name)
	}
}
