package feed

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec encodes frames as MessagePack binary messages. Clients
// opt in on the hello frame; the payload format is more compact than
// JSON at the cost of human readability.
type MsgpackCodec struct{}

var _ Codec = MsgpackCodec{}

func (MsgpackCodec) Encode(frame *Frame) ([]byte, error) {
	data, err := msgpack.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode msgpack frame: %w", err)
	}
	return data, nil
}

func (MsgpackCodec) Decode(data []byte) (*Frame, error) {
	var frame Frame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode msgpack frame: %w", err)
	}
	return &frame, nil
}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Binary() bool { return true }
