package rpc

import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/radio-control/rfcontrol/internal/control"
)

// Client calls a remote RFControl service.
type Client struct {
	conn *grpc.ClientConn
}

var _ control.Controller = (*Client)(nil)

// Dial creates a client for target over an insecure channel. The connection
// is established lazily on the first call.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ApplySettings calls SetRFSettings. On failure the gRPC status error is
// returned together with the response rebuilt from trailers, when present.
func (c *Client) ApplySettings(ctx context.Context, req control.SettingsRequest) (*control.SettingsResponse, error) {
	in := &RFConfig{Frequency: req.FrequencyMHz, Gain: req.GainDB, DeviceID: req.DeviceID}
	out := new(RFResponse)
	var trailer metadata.MD

	if err := c.conn.Invoke(ctx, SetRFSettingsMethod, in, out, grpc.Trailer(&trailer)); err != nil {
		return responseFromTrailer(trailer), err
	}
	return &control.SettingsResponse{Success: out.Success, StatusText: out.DeviceStatus}, nil
}

// GetStatus calls GetDeviceStatus.
func (c *Client) GetStatus(ctx context.Context, req control.StatusRequest) (*control.StatusResponse, error) {
	out := new(RFResponse)
	if err := c.conn.Invoke(ctx, GetDeviceStatusMethod, &DeviceStatusRequest{DeviceID: req.DeviceID}, out); err != nil {
		return nil, err
	}
	return &control.StatusResponse{Success: out.Success, StatusText: out.DeviceStatus}, nil
}

func responseFromTrailer(md metadata.MD) *control.SettingsResponse {
	statuses := md.Get(TrailerDeviceStatus)
	if len(statuses) == 0 {
		return nil
	}
	resp := &control.SettingsResponse{StatusText: statuses[0]}
	if v := md.Get(TrailerSuccess); len(v) > 0 {
		resp.Success, _ = strconv.ParseBool(v[0])
	}
	return resp
}
