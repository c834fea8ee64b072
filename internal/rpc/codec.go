package rpc

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Codec marshals the rfcontrol messages in protobuf wire format. Generated
// proto.Message values are passed through to the protobuf runtime.
type Codec struct{}

// Name returns "proto" so peers see the standard application/grpc+proto content type.
func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case wireMessage:
		return m.appendWire(nil), nil
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("rpc codec: cannot marshal %T", v)
	}
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case wireMessage:
		return m.unmarshalWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("rpc codec: cannot unmarshal into %T", v)
	}
}
