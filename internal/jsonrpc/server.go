//
//
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/radio-control/rfcontrol/internal/audit"
	"github.com/radio-control/rfcontrol/internal/control"
)

// TelemetryPort streams telemetry to HTTP clients.
type TelemetryPort interface {
	ServeSSE(w http.ResponseWriter, r *http.Request)
}

// Server represents the JSON-RPC HTTP server.
type Server struct {
	httpServer *http.Server
	service    control.Controller
	telemetry  TelemetryPort
	version    string
	log        zerolog.Logger
	startTime  time.Time
}

// NewServer creates a new JSON-RPC server. telemetry may be nil. version is
// reported by the health endpoint.
func NewServer(svc control.Controller, telemetry TelemetryPort, version string, log zerolog.Logger, readTimeout, writeTimeout, idleTimeout time.Duration) *Server {
	s := &Server{
		service:   svc,
		telemetry: telemetry,
		version:   version,
		log:       log.With().Str("component", "jsonrpc").Logger(),
		startTime: time.Now(),
	}
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// Handler returns the router serving all endpoints.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(actorMiddleware)

	r.HandleFunc("/rpc", s.handleRPC)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.telemetry != nil {
		api.HandleFunc("/telemetry", s.telemetry.ServeSSE).Methods(http.MethodGet)
	}
	return r
}

// Start starts the HTTP server on addr and blocks until Stop.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop. After Stop it returns nil at once.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("JSON-RPC server started")
	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server. Calling it before Serve keeps Serve
// from ever accepting.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(audit.WithActor(r.Context(), r.RemoteAddr)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).Seconds(),
		"version": s.version,
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("Failed to write health response")
	}
}

// handleRPC answers every JSON-RPC request with HTTP 200; failures travel in
// the error object.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		s.writeResponse(w, errorResponse(nil, CodeInvalidRequest, "Invalid Request", nil))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, errorResponse(nil, CodeParseError, "Parse error", nil))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeResponse(w, errorResponse(req.ID, CodeInvalidRequest, "Invalid Request", nil))
		return
	}

	resp := s.dispatch(r.Context(), &req)
	s.writeResponse(w, resp)

	event := s.log.Debug()
	if resp.Error != nil {
		event = s.log.Warn().Int("code", resp.Error.Code)
	}
	event.Str("method", req.Method).Str("remote", r.RemoteAddr).Dur("latency", time.Since(start)).Msg("JSON-RPC request processed")
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case MethodApplySettings:
		var p applySettingsParams
		if err := decodeParams(req.Params, &p); err != nil || p.FrequencyMHz == nil || p.GainDB == nil {
			return errorResponse(req.ID, CodeInvalidParams, "Invalid params: frequencyMHz and gainDB are required numbers", nil)
		}
		resp, err := s.service.ApplySettings(ctx, control.SettingsRequest{
			FrequencyMHz: *p.FrequencyMHz,
			GainDB:       *p.GainDB,
			DeviceID:     p.DeviceID,
		})
		if err != nil {
			return internalError(req.ID, resp, err)
		}
		return resultResponse(req.ID, resp)

	case MethodGetStatus:
		var p getStatusParams
		if err := decodeParams(req.Params, &p); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "Invalid params", nil)
		}
		resp, err := s.service.GetStatus(ctx, control.StatusRequest{DeviceID: p.DeviceID})
		if err != nil {
			return internalError(req.ID, nil, err)
		}
		return resultResponse(req.ID, resp)

	default:
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found", nil)
	}
}

// decodeParams accepts a missing or null params member as an empty object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func internalError(id interface{}, resp *control.SettingsResponse, err error) *Response {
	msg := err.Error()
	var opErr *control.OperationError
	if errors.As(err, &opErr) {
		msg = opErr.Message
		if resp == nil {
			resp = opErr.Response
		}
	}
	if resp == nil {
		return errorResponse(id, CodeInternalError, msg, nil)
	}
	return errorResponse(id, CodeInternalError, msg, resp)
}

func resultResponse(id interface{}, result interface{}) *Response {
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, CodeInternalError, "Internal error", nil)
	}
	return &Response{JSONRPC: "2.0", Result: data, ID: id}
}

func errorResponse(id interface{}, code int, message string, data interface{}) *Response {
	e := &Error{Code: code, Message: message}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			e.Data = raw
		}
	}
	return &Response{JSONRPC: "2.0", Error: e, ID: id}
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}
