package replayv1

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

// CodecName is grpc's default codec name. Registering under it keeps the
// replay.v1 calls on plain application/grpc.
const CodecName = "proto"

func init() {
	encoding.RegisterCodec(wireCodec{})
}

// wireCodec encodes replay.v1 messages with their own protobuf encoders
// and hands every other message to the protobuf runtime.
type wireCodec struct{}

func (wireCodec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case Message:
		return m.AppendWire(nil), nil
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("marshal: %T is not a protobuf message", v)
}

func (wireCodec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case Message:
		if err := m.UnmarshalWire(data); err != nil {
			return fmt.Errorf("unmarshal %T: %w", v, err)
		}
		return nil
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("unmarshal: %T is not a protobuf message", v)
}

func (wireCodec) Name() string {
	return CodecName
}
