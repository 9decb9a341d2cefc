package feed

import (
	"encoding/json"
	"fmt"
)

// JSONCodec encodes frames as JSON text messages. This is the default
// wire format.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) Encode(frame *Frame) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode json frame: %w", err)
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode json frame: %w", err)
	}
	return &frame, nil
}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Binary() bool { return false }
