package control

import (
	"context"
	"errors"
	"time"

	"github.com/radio-control/rfcontrol/internal/audit"
	"github.com/radio-control/rfcontrol/internal/device"
	"github.com/radio-control/rfcontrol/internal/telemetry"
)

// DevicePort is the capability the service needs from a device.
type DevicePort interface {
	ApplySettings(frequencyMHz, gainDB float64) (bool, string)
	Status() string
}

// AuditLogger writes audit records.
type AuditLogger interface {
	LogAction(ctx context.Context, action, deviceID string, params map[string]interface{}, err error, latency time.Duration)
}

// Publisher emits telemetry events.
type Publisher interface {
	PublishDevice(deviceID, eventType string, data map[string]interface{}) telemetry.Event
}

// Controller is the remote-control contract shared by the service and its
// network clients.
type Controller interface {
	ApplySettings(ctx context.Context, req SettingsRequest) (*SettingsResponse, error)
	GetStatus(ctx context.Context, req StatusRequest) (*StatusResponse, error)
}

// Compile-time assertions
var (
	_ DevicePort  = (*device.Device)(nil)
	_ AuditLogger = (*audit.Logger)(nil)
	_ Publisher   = (*telemetry.Hub)(nil)
	_ Controller  = (*Service)(nil)
)

// ErrPreconditionFailed indicates the device rejected a mutation because it
// was not connected.
var ErrPreconditionFailed = errors.New("PRECONDITION_FAILED")
