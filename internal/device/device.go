//
//
package device

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Status texts for the non-operating states.
const (
	StatusDisconnected = "DISCONNECTED"
	StatusIdle         = "CONNECTED - IDLE"
)

const notConnectedIdentity = "No device connected."

// State is the connection state of the device.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "CONNECTED"
	}
	return "DISCONNECTED"
}

// Snapshot is a consistent copy of the device state.
type Snapshot struct {
	State        State   `json:"-"`
	Connected    bool    `json:"connected"`
	DeviceID     string  `json:"deviceId,omitempty"`
	FrequencyMHz float64 `json:"frequencyMHz"`
	GainDB       float64 `json:"gainDB"`
	StatusText   string  `json:"statusText"`
}

// MarshalJSON encodes non-finite settings as their status text form.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Connected    bool        `json:"connected"`
		DeviceID     string      `json:"deviceId,omitempty"`
		FrequencyMHz interface{} `json:"frequencyMHz"`
		GainDB       interface{} `json:"gainDB"`
		StatusText   string      `json:"statusText"`
	}{
		Connected:    s.Connected,
		DeviceID:     s.DeviceID,
		FrequencyMHz: JSONNumber(s.FrequencyMHz),
		GainDB:       JSONNumber(s.GainDB),
		StatusText:   s.StatusText,
	})
}

// Device represents the thread-safe state of one simulated RF device.
type Device struct {
	mu           sync.RWMutex
	connected    bool
	deviceID     string
	frequencyMHz float64
	gainDB       float64
	status       string
	log          zerolog.Logger

	// afterFrequency runs between the two writes of ApplySettings with mu held.
	afterFrequency func()
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger used for state transitions.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Device) {
		d.log = l
	}
}

// New creates a disconnected device.
func New(opts ...Option) *Device {
	d := &Device{
		status: StatusDisconnected,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Connect binds the device to id. Connecting an already connected device is a
// no-op that keeps the existing binding and still reports success. A blank id
// is rejected and leaves the device disconnected.
func (d *Device) Connect(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectLocked(id)
}

func (d *Device) connectLocked(id string) bool {
	if d.connected {
		d.log.Warn().Str("deviceId", d.deviceID).Msgf("Device already connected to %s.", d.deviceID)
		return true
	}
	if strings.TrimSpace(id) == "" {
		d.log.Error().Msg("Cannot connect: device ID is empty.")
		return false
	}

	d.log.Info().Str("deviceId", id).Msgf("Connecting to device '%s'...", id)
	d.deviceID = id
	d.connected = true
	d.status = StatusIdle
	d.log.Info().Str("deviceId", id).Msgf("Successfully connected to %s.", id)
	return true
}

// Disconnect releases the binding. It is a no-op when already disconnected.
func (d *Device) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnectLocked()
}

func (d *Device) disconnectLocked() {
	if !d.connected {
		d.log.Warn().Msg("No device connected.")
		return
	}

	d.log.Info().Str("deviceId", d.deviceID).Msgf("Disconnecting from %s...", d.deviceID)
	d.connected = false
	d.deviceID = ""
	d.status = StatusDisconnected
	d.log.Info().Msg("Device disconnected.")
}

// SetFrequency stores freq in MHz. It fails without touching state when the
// device is not connected. No range validation is performed.
func (d *Device) SetFrequency(freq float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setFrequencyLocked(freq)
}

func (d *Device) setFrequencyLocked(freq float64) bool {
	if !d.connected {
		d.log.Error().Msg("Cannot set frequency: No device connected.")
		return false
	}

	d.log.Info().Float64("frequencyMHz", freq).Msgf("Setting frequency to %s MHz.", FormatFloat(freq))
	d.frequencyMHz = freq
	d.status = OperatingStatus(d.frequencyMHz, d.gainDB)
	return true
}

// SetGain stores gain in dB. It fails without touching state when the device
// is not connected. No range validation is performed.
func (d *Device) SetGain(gain float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setGainLocked(gain)
}

func (d *Device) setGainLocked(gain float64) bool {
	if !d.connected {
		d.log.Error().Msg("Cannot set gain: No device connected.")
		return false
	}

	d.log.Info().Float64("gainDB", gain).Msgf("Setting gain to %s dB.", FormatFloat(gain))
	d.gainDB = gain
	d.status = OperatingStatus(d.frequencyMHz, d.gainDB)
	return true
}

// ApplySettings sets frequency then gain under a single exclusive lock and
// returns the combined outcome with the status read after both writes. Gain is
// attempted even when the frequency write fails.
func (d *Device) ApplySettings(freq, gain float64) (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	okFreq := d.setFrequencyLocked(freq)
	if d.afterFrequency != nil {
		d.afterFrequency()
	}
	okGain := d.setGainLocked(gain)

	return okFreq && okGain, d.status
}

// Identify answers the identification query.
func (d *Device) Identify() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return notConnectedIdentity
	}
	return fmt.Sprintf("Simulated RF Device, s/n:%s, fw:1.0", d.deviceID)
}

// Status returns the current status text.
func (d *Device) Status() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Snapshot returns a copy of the whole state taken under the read lock.
func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	state := Disconnected
	if d.connected {
		state = Connected
	}
	return Snapshot{
		State:        state,
		Connected:    d.connected,
		DeviceID:     d.deviceID,
		FrequencyMHz: d.frequencyMHz,
		GainDB:       d.gainDB,
		StatusText:   d.status,
	}
}

// OperatingStatus composes the status text of a connected device.
func OperatingStatus(freq, gain float64) string {
	return fmt.Sprintf("OPERATING - Freq: %sMHz, Gain: %sdB", FormatFloat(freq), FormatFloat(gain))
}

// JSONNumber returns v when it is finite and FormatFloat(v) otherwise, so the
// value always survives encoding/json.
func JSONNumber(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return FormatFloat(v)
	}
	return v
}

// FormatFloat renders v in its shortest round-trip form, keeping a ".0" on
// integral values and switching to exponent form outside [1e-4, 1e16).
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
