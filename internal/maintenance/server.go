// Package maintenance provides the operator console: line-delimited JSON-RPC
// over TCP that binds and releases the device outside the control boundary.
package maintenance

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/radio-control/rfcontrol/internal/audit"
	"github.com/radio-control/rfcontrol/internal/config"
	"github.com/radio-control/rfcontrol/internal/control"
	"github.com/radio-control/rfcontrol/internal/device"
	"github.com/radio-control/rfcontrol/internal/jsonrpc"
	"github.com/radio-control/rfcontrol/internal/telemetry"
)

// DeviceControl is the device surface the console operates on.
type DeviceControl interface {
	Connect(id string) bool
	Disconnect()
	Identify() string
	Snapshot() device.Snapshot
}

var _ DeviceControl = (*device.Device)(nil)

// consoleError is a console failure with a stable audit code.
type consoleError struct {
	code, msg string
}

func (e *consoleError) Error() string     { return e.code + ": " + e.msg }
func (e *consoleError) ErrorCode() string { return e.code }

var errBlankID = &consoleError{code: "INVALID_PARAMS", msg: "device ID is required"}

// Server handles maintenance TCP connections
type Server struct {
	device    DeviceControl
	defaultID string
	allowed   []*net.IPNet
	timeout   time.Duration

	auditLogger control.AuditLogger
	publisher   control.Publisher
	log         zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a maintenance server. defaultID is used by connect
// when no id is given.
func NewServer(dev DeviceControl, cfg config.MaintenanceConfig, defaultID string, log zerolog.Logger) (*Server, error) {
	allowed := make([]*net.IPNet, 0, len(cfg.AllowedCIDRs))
	for _, cidr := range cfg.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		allowed = append(allowed, network)
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Server{
		device:    dev,
		defaultID: defaultID,
		allowed:   allowed,
		timeout:   timeout,
		log:       log.With().Str("component", "maintenance").Logger(),
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// SetAuditLogger sets the audit logger.
func (s *Server) SetAuditLogger(l control.AuditLogger) {
	s.auditLogger = l
}

// SetPublisher sets the telemetry publisher for state changes.
func (s *Server) SetPublisher(p control.Publisher) {
	s.publisher = p
}

// Start listens on addr and serves until Close.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Close.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		lis.Close()
		return nil
	}
	s.listener = lis
	s.mu.Unlock()

	s.log.Info().Str("addr", lis.Addr().String()).Msg("Maintenance server listening")

	for {
		conn, err := lis.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error().Err(err).Msg("Failed to accept connection")
			continue
		}

		if !s.isAllowed(conn.RemoteAddr()) {
			s.log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("Rejected connection (not in allowed CIDRs)")
			conn.Close()
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// isAllowed checks if the address is inside an allowed CIDR.
func (s *Server) isAllowed(addr net.Addr) bool {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range s.allowed {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// handleConnection serves requests, one JSON object per line, until the peer
// closes or stays idle past the timeout.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	ctx := audit.WithActor(context.Background(), remote)
	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for {
		conn.SetDeadline(time.Now().Add(s.timeout))
		if !scanner.Scan() {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp *jsonrpc.Response
		var req jsonrpc.Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp = errorResponse(nil, jsonrpc.CodeParseError, "Parse error")
		} else if req.JSONRPC != "2.0" {
			resp = errorResponse(req.ID, jsonrpc.CodeInvalidRequest, "Invalid Request")
		} else {
			resp = s.processRequest(ctx, &req)
		}

		if err := encoder.Encode(resp); err != nil {
			s.log.Error().Err(err).Str("remote", remote).Msg("Failed to encode response")
			return
		}
		s.log.Info().Str("method", req.Method).Str("remote", remote).Msg("Maintenance command processed")
	}
}

func (s *Server) processRequest(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()

	switch req.Method {
	case "identify":
		return resultResponse(req.ID, s.device.Identify())

	case "status":
		return resultResponse(req.ID, s.device.Snapshot())

	case "connect":
		id := s.defaultID
		var params []string
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return errorResponse(req.ID, jsonrpc.CodeInvalidParams, "Invalid params: expected [id]")
			}
		}
		if len(params) > 0 && params[0] != "" {
			id = params[0]
		}

		if !s.device.Connect(id) {
			s.logAudit(ctx, "connect", id, map[string]interface{}{"id": id}, errBlankID, time.Since(start))
			return errorResponse(req.ID, jsonrpc.CodeInvalidParams, "Invalid params: "+errBlankID.msg)
		}
		snap := s.device.Snapshot()
		s.logAudit(ctx, "connect", id, map[string]interface{}{"id": id}, nil, time.Since(start))
		s.publishState(snap)
		return resultResponse(req.ID, snap)

	case "disconnect":
		before := s.device.Snapshot()
		s.device.Disconnect()
		snap := s.device.Snapshot()
		s.logAudit(ctx, "disconnect", before.DeviceID, nil, nil, time.Since(start))
		s.publishState(snap)
		return resultResponse(req.ID, snap)

	default:
		return errorResponse(req.ID, jsonrpc.CodeMethodNotFound, "Method not found")
	}
}

func (s *Server) logAudit(ctx context.Context, action, deviceID string, params map[string]interface{}, err error, latency time.Duration) {
	if s.auditLogger != nil {
		s.auditLogger.LogAction(ctx, action, deviceID, params, err, latency)
	}
}

func (s *Server) publishState(snap device.Snapshot) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishDevice(snap.DeviceID, telemetry.EventState, map[string]interface{}{
		"connected":  snap.Connected,
		"statusText": snap.StatusText,
	})
}

func resultResponse(id interface{}, result interface{}) *jsonrpc.Response {
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, jsonrpc.CodeInternalError, "Internal error")
	}
	return &jsonrpc.Response{JSONRPC: "2.0", Result: data, ID: id}
}

func errorResponse(id interface{}, code int, message string) *jsonrpc.Response {
	return &jsonrpc.Response{
		JSONRPC: "2.0",
		Error:   &jsonrpc.Error{Code: code, Message: message},
		ID:      id,
	}
}

// Close stops accepting, closes open connections and waits for their handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}
