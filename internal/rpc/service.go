package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rfcontrol.RFControl"

// Full method names.
const (
	SetRFSettingsMethod   = "/" + ServiceName + "/SetRFSettings"
	GetDeviceStatusMethod = "/" + ServiceName + "/GetDeviceStatus"
)

// RFControlServer is the server API for the RFControl service.
type RFControlServer interface {
	SetRFSettings(ctx context.Context, in *RFConfig) (*RFResponse, error)
	GetDeviceStatus(ctx context.Context, in *DeviceStatusRequest) (*RFResponse, error)
}

// ServiceDesc describes the RFControl service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RFControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SetRFSettings", Handler: setRFSettingsHandler},
		{MethodName: "GetDeviceStatus", Handler: getDeviceStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rfcontrol.proto",
}

func setRFSettingsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RFConfig)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RFControlServer).SetRFSettings(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SetRFSettingsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RFControlServer).SetRFSettings(ctx, req.(*RFConfig))
	}
	return interceptor(ctx, in, info, handler)
}

func getDeviceStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeviceStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RFControlServer).GetDeviceStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetDeviceStatusMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RFControlServer).GetDeviceStatus(ctx, req.(*DeviceStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}
