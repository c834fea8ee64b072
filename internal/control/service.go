package control

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/radio-control/rfcontrol/internal/device"
	"github.com/radio-control/rfcontrol/internal/telemetry"
)

// SettingsRequest asks for a frequency and gain. DeviceID is recorded but
// does not select a device.
type SettingsRequest struct {
	FrequencyMHz float64 `json:"frequencyMHz"`
	GainDB       float64 `json:"gainDB"`
	DeviceID     string  `json:"deviceId"`
}

// SettingsResponse is the device's answer to a SettingsRequest.
type SettingsResponse struct {
	Success    bool   `json:"success"`
	StatusText string `json:"statusText"`
}

// StatusRequest asks for the current device status.
type StatusRequest struct {
	DeviceID string `json:"deviceId"`
}

// StatusResponse carries the current device status.
type StatusResponse struct {
	Success    bool   `json:"success"`
	StatusText string `json:"statusText"`
}

// Service routes control requests to the device.
type Service struct {
	device DevicePort

	// applyMu spans the device write and its event, so settings events are
	// published in the order the device applied them.
	applyMu sync.Mutex

	// Optional collaborators
	auditLogger AuditLogger
	publisher   Publisher

	log zerolog.Logger
}

// NewService creates a service for dev.
func NewService(dev DevicePort, log zerolog.Logger) *Service {
	return &Service{
		device: dev,
		log:    log.With().Str("component", "control").Logger(),
	}
}

// SetAuditLogger sets the audit logger.
func (s *Service) SetAuditLogger(l AuditLogger) {
	s.auditLogger = l
}

// SetPublisher sets the telemetry publisher.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// ApplySettings sets frequency then gain on the device and returns the
// resulting status. When either write is rejected the response is still
// returned, alongside an *OperationError wrapping ErrPreconditionFailed.
func (s *Service) ApplySettings(ctx context.Context, req SettingsRequest) (*SettingsResponse, error) {
	start := time.Now()
	freq, gain := device.JSONNumber(req.FrequencyMHz), device.JSONNumber(req.GainDB)

	s.applyMu.Lock()
	ok, status := s.device.ApplySettings(req.FrequencyMHz, req.GainDB)
	if ok {
		s.publish(req.DeviceID, telemetry.EventSettingsApplied, map[string]interface{}{
			"frequencyMHz": freq,
			"gainDB":       gain,
			"statusText":   status,
		})
	} else {
		s.publish(req.DeviceID, telemetry.EventFault, map[string]interface{}{
			"code":       ErrPreconditionFailed.Error(),
			"message":    ApplyFailedMessage,
			"statusText": status,
		})
	}
	s.applyMu.Unlock()
	latency := time.Since(start)

	resp := &SettingsResponse{Success: ok, StatusText: status}
	var err error
	if !ok {
		err = &OperationError{
			Code:     ErrPreconditionFailed,
			Message:  ApplyFailedMessage,
			Response: resp,
		}
	}

	params := map[string]interface{}{
		"frequencyMHz": freq,
		"gainDB":       gain,
	}
	s.logAudit(ctx, "applySettings", req.DeviceID, params, err, latency)

	if err != nil {
		s.log.Error().
			Str("deviceId", req.DeviceID).
			Float64("frequencyMHz", req.FrequencyMHz).
			Float64("gainDB", req.GainDB).
			Str("status", status).
			Msg(ApplyFailedMessage)
		return resp, err
	}

	s.log.Info().
		Str("deviceId", req.DeviceID).
		Float64("frequencyMHz", req.FrequencyMHz).
		Float64("gainDB", req.GainDB).
		Dur("latency", latency).
		Msg("settings applied")
	return resp, nil
}

// GetStatus returns the device status. It always succeeds.
func (s *Service) GetStatus(ctx context.Context, req StatusRequest) (*StatusResponse, error) {
	start := time.Now()
	status := s.device.Status()
	s.logAudit(ctx, "getStatus", req.DeviceID, nil, nil, time.Since(start))

	s.log.Debug().Str("deviceId", req.DeviceID).Str("status", status).Msg("status requested")
	return &StatusResponse{Success: true, StatusText: status}, nil
}

func (s *Service) logAudit(ctx context.Context, action, deviceID string, params map[string]interface{}, err error, latency time.Duration) {
	if s.auditLogger == nil {
		return
	}
	s.auditLogger.LogAction(ctx, action, deviceID, params, err, latency)
}

func (s *Service) publish(deviceID, eventType string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishDevice(deviceID, eventType, data)
}
