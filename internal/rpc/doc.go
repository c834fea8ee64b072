// Package rpc exposes the control service over gRPC as rfcontrol.RFControl.
//
// Messages are encoded directly in protobuf wire format, so clients built
// from the rfcontrol.proto definition interoperate without generated Go code:
//
//	message RFConfig            { double frequency = 1; double gain = 2; string device_id = 3; }
//	message DeviceStatusRequest { string device_id = 1; }
//	message RFResponse          { bool success = 1; string device_status = 2; }
//
//	service RFControl {
//	  rpc SetRFSettings(RFConfig) returns (RFResponse);
//	  rpc GetDeviceStatus(DeviceStatusRequest) returns (RFResponse);
//	}
//
// A failed SetRFSettings returns codes.Internal. The response payload is then
// carried in the rf-success and rf-device-status trailers.
package rpc
