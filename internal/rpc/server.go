//
//
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/radio-control/rfcontrol/internal/audit"
	"github.com/radio-control/rfcontrol/internal/control"
)

// Trailer keys carrying the response payload of a failed call.
const (
	TrailerSuccess      = "rf-success"
	TrailerDeviceStatus = "rf-device-status"
)

// Server represents the gRPC server.
type Server struct {
	grpcServer *grpc.Server
	log        zerolog.Logger
}

// handler adapts a control.Controller to RFControlServer.
type handler struct {
	service control.Controller
}

var _ RFControlServer = (*handler)(nil)

// NewServer creates a gRPC server for svc. maxStreams bounds concurrent
// calls per connection.
func NewServer(svc control.Controller, maxStreams int, log zerolog.Logger) *Server {
	log = log.With().Str("component", "grpc").Logger()

	opts := []grpc.ServerOption{
		grpc.ForceServerCodec(Codec{}),
		grpc.ChainUnaryInterceptor(UnaryLoggingInterceptor(log)),
	}
	if maxStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(maxStreams)))
	}

	s := &Server{
		grpcServer: grpc.NewServer(opts...),
		log:        log,
	}
	s.grpcServer.RegisterService(&ServiceDesc, &handler{service: svc})
	return s
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.log.Info().Str("addr", lis.Addr().String()).Msg("gRPC server started")
	return s.Serve(lis)
}

// Serve serves on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

// Stop drains in-flight calls, forcing close when ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.grpcServer.Stop()
		return fmt.Errorf("failed to stop gRPC server gracefully: %w", ctx.Err())
	}
}

func (h *handler) SetRFSettings(ctx context.Context, in *RFConfig) (*RFResponse, error) {
	resp, err := h.service.ApplySettings(ctx, control.SettingsRequest{
		FrequencyMHz: in.Frequency,
		GainDB:       in.Gain,
		DeviceID:     in.DeviceID,
	})
	if err != nil {
		return nil, toStatus(ctx, resp, err)
	}
	return &RFResponse{Success: resp.Success, DeviceStatus: resp.StatusText}, nil
}

func (h *handler) GetDeviceStatus(ctx context.Context, in *DeviceStatusRequest) (*RFResponse, error) {
	resp, err := h.service.GetStatus(ctx, control.StatusRequest{DeviceID: in.DeviceID})
	if err != nil {
		return nil, toStatus(ctx, nil, err)
	}
	return &RFResponse{Success: resp.Success, DeviceStatus: resp.StatusText}, nil
}

// toStatus maps a control error to codes.Internal and attaches any response
// payload as trailers, since gRPC drops the message of a failed call.
func toStatus(ctx context.Context, resp *control.SettingsResponse, err error) error {
	var opErr *control.OperationError
	msg := err.Error()
	if errors.As(err, &opErr) {
		msg = opErr.Message
		if resp == nil {
			resp = opErr.Response
		}
	}

	if resp != nil {
		md := metadata.Pairs(
			TrailerSuccess, strconv.FormatBool(resp.Success),
			TrailerDeviceStatus, resp.StatusText,
		)
		// Without a transport stream (direct calls in tests) there is nowhere
		// to put trailers; the status is still returned.
		_ = grpc.SetTrailer(ctx, md)
	}
	return status.Error(codes.Internal, msg)
}

// UnaryLoggingInterceptor logs every call and records the peer address as
// the audit actor.
func UnaryLoggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		actor := "unknown"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			actor = p.Addr.String()
		}
		ctx = audit.WithActor(ctx, actor)

		resp, err := handler(ctx, req)

		event := log.Info()
		if err != nil {
			event = log.Warn().Err(err)
		}
		event.Str("method", info.FullMethod).
			Str("peer", actor).
			Dur("latency", time.Since(start)).
			Str("code", status.Code(err).String()).
			Msg("gRPC call")
		return resp, err
	}
}
