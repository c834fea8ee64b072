package rpc

import (
	"bytes"
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestRFConfigWireFormat(t *testing.T) {
	msg := &RFConfig{Frequency: 99.9, Gain: 15.5, DeviceID: "SYS_TEST_01"}

	var want []byte
	want = append(want, 0x09)
	want = protowire.AppendFixed64(want, math.Float64bits(99.9))
	want = append(want, 0x11)
	want = protowire.AppendFixed64(want, math.Float64bits(15.5))
	want = append(want, 0x1a, byte(len("SYS_TEST_01")))
	want = append(want, "SYS_TEST_01"...)

	got, err := Codec{}.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Marshal = %x, want %x", got, want)
	}

	var decoded RFConfig
	if err := (Codec{}).Unmarshal(got, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded != *msg {
		t.Errorf("Decoded %+v, want %+v", decoded, *msg)
	}
}

func TestZeroValuesAreOmitted(t *testing.T) {
	got, err := Codec{}.Marshal(&RFResponse{})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty encoding, got %x", got)
	}

	// Negative zero is not the default value.
	got, _ = Codec{}.Marshal(&RFConfig{Gain: math.Copysign(0, -1)})
	if len(got) == 0 {
		t.Error("Expected -0.0 to be encoded")
	}
}

func TestRFConfigAcceptsFloatFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(100.5))
	b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(-3.25))

	var msg RFConfig
	if err := (Codec{}).Unmarshal(b, &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if msg.Frequency != 100.5 || msg.Gain != -3.25 {
		t.Errorf("Expected 100.5/-3.25, got %v/%v", msg.Frequency, msg.Gain)
	}
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, "OPERATING - Freq: 1.0MHz, Gain: 2.0dB")
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	var msg RFResponse
	if err := (Codec{}).Unmarshal(b, &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !msg.Success || msg.DeviceStatus != "OPERATING - Freq: 1.0MHz, Gain: 2.0dB" {
		t.Errorf("Unexpected message: %+v", msg)
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	b, _ := Codec{}.Marshal(&DeviceStatusRequest{DeviceID: "DEV001"})

	var msg DeviceStatusRequest
	if err := (Codec{}).Unmarshal(b[:len(b)-2], &msg); err == nil {
		t.Error("Expected error for truncated message")
	}
}

func TestCodecProtoMessagePassthrough(t *testing.T) {
	in := wrapperspb.String("DEV001")
	b, err := Codec{}.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	out := new(wrapperspb.StringValue)
	if err := (Codec{}).Unmarshal(b, out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out.GetValue() != "DEV001" {
		t.Errorf("Expected DEV001, got %q", out.GetValue())
	}

	// StringValue uses field 1 like DeviceStatusRequest.
	var req DeviceStatusRequest
	if err := (Codec{}).Unmarshal(b, &req); err != nil || req.DeviceID != "DEV001" {
		t.Errorf("Expected wire compatibility, got %+v %v", req, err)
	}
}

func TestCodecRejectsUnknownTypes(t *testing.T) {
	if _, err := (Codec{}).Marshal(struct{}{}); err == nil {
		t.Error("Expected Marshal error for unsupported type")
	}
	if err := (Codec{}).Unmarshal(nil, &struct{}{}); err == nil {
		t.Error("Expected Unmarshal error for unsupported type")
	}
	if (Codec{}).Name() != "proto" {
		t.Errorf("Unexpected codec name %q", Codec{}.Name())
	}
}
