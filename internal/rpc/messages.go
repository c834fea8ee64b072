package rpc

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// RFConfig is the SetRFSettings request.
type RFConfig struct {
	Frequency float64
	Gain      float64
	DeviceID  string
}

// DeviceStatusRequest is the GetDeviceStatus request.
type DeviceStatusRequest struct {
	DeviceID string
}

// RFResponse is returned by both methods.
type RFResponse struct {
	Success      bool
	DeviceStatus string
}

// wireMessage is implemented by every message the codec knows.
type wireMessage interface {
	appendWire(b []byte) []byte
	unmarshalWire(b []byte) error
}

func (m *RFConfig) appendWire(b []byte) []byte {
	b = appendDouble(b, 1, m.Frequency)
	b = appendDouble(b, 2, m.Gain)
	return appendString(b, 3, m.DeviceID)
}

func (m *RFConfig) unmarshalWire(b []byte) error {
	*m = RFConfig{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := consumeDouble(num, typ, b)
			if n >= 0 {
				m.Frequency = v
			}
			return n
		case 2:
			v, n := consumeDouble(num, typ, b)
			if n >= 0 {
				m.Gain = v
			}
			return n
		case 3:
			if typ == protowire.BytesType {
				v, n := protowire.ConsumeString(b)
				m.DeviceID = v
				return n
			}
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

func (m *DeviceStatusRequest) appendWire(b []byte) []byte {
	return appendString(b, 1, m.DeviceID)
}

func (m *DeviceStatusRequest) unmarshalWire(b []byte) error {
	*m = DeviceStatusRequest{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			m.DeviceID = v
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

func (m *RFResponse) appendWire(b []byte) []byte {
	if m.Success {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return appendString(b, 2, m.DeviceStatus)
}

func (m *RFResponse) unmarshalWire(b []byte) error {
	*m = RFResponse{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Success = protowire.DecodeBool(v)
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.DeviceStatus = v
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

// walkFields calls field for each tag in b. field consumes the value and
// returns its length, or a negative protowire error code.
func walkFields(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n = field(num, typ, b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

// Zero values are omitted, as proto3 does for implicit presence fields.
func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	bits := math.Float64bits(v)
	if bits == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, bits)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// consumeDouble accepts both double and float encodings.
func consumeDouble(num protowire.Number, typ protowire.Type, b []byte) (float64, int) {
	switch typ {
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(b)
		return math.Float64frombits(v), n
	case protowire.Fixed32Type:
		v, n := protowire.ConsumeFixed32(b)
		return float64(math.Float32frombits(v)), n
	default:
		return 0, protowire.ConsumeFieldValue(num, typ, b)
	}
}
