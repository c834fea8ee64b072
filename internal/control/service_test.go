package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/radio-control/rfcontrol/internal/device"
	"github.com/radio-control/rfcontrol/internal/telemetry"
)

type auditRecord struct {
	action   string
	deviceID string
	params   map[string]interface{}
	err      error
}

type fakeAudit struct {
	mu      sync.Mutex
	records []auditRecord
}

func (a *fakeAudit) LogAction(ctx context.Context, action, deviceID string, params map[string]interface{}, err error, latency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, auditRecord{action, deviceID, params, err})
}

type fakePublisher struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (p *fakePublisher) PublishDevice(deviceID, eventType string, data map[string]interface{}) telemetry.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := telemetry.Event{ID: int64(len(p.events) + 1), Type: eventType, DeviceID: deviceID, Data: data}
	p.events = append(p.events, e)
	return e
}

// stubDevice returns canned answers.
type stubDevice struct {
	ok     bool
	status string
	calls  [][2]float64
}

func (d *stubDevice) ApplySettings(f, g float64) (bool, string) {
	d.calls = append(d.calls, [2]float64{f, g})
	return d.ok, d.status
}

func (d *stubDevice) Status() string { return d.status }

func newConnectedService(t *testing.T) (*Service, *device.Device, *fakeAudit, *fakePublisher) {
	t.Helper()
	dev := device.New()
	if !dev.Connect("DEV001") {
		t.Fatal("Connect failed")
	}
	svc := NewService(dev, zerolog.Nop())
	a := &fakeAudit{}
	p := &fakePublisher{}
	svc.SetAuditLogger(a)
	svc.SetPublisher(p)
	return svc, dev, a, p
}

func TestApplySettingsEndToEnd(t *testing.T) {
	svc, _, a, p := newConnectedService(t)

	resp, err := svc.ApplySettings(context.Background(), SettingsRequest{
		FrequencyMHz: 99.9,
		GainDB:       15.5,
		DeviceID:     "SYS_TEST_01",
	})
	if err != nil {
		t.Fatalf("ApplySettings failed: %v", err)
	}
	if !resp.Success {
		t.Error("Expected success")
	}
	if resp.StatusText != "OPERATING - Freq: 99.9MHz, Gain: 15.5dB" {
		t.Errorf("Unexpected status %q", resp.StatusText)
	}

	if len(a.records) != 1 {
		t.Fatalf("Expected 1 audit record, got %d", len(a.records))
	}
	rec := a.records[0]
	if rec.action != "applySettings" || rec.deviceID != "SYS_TEST_01" || rec.err != nil {
		t.Errorf("Unexpected audit record: %+v", rec)
	}
	if rec.params["frequencyMHz"] != 99.9 || rec.params["gainDB"] != 15.5 {
		t.Errorf("Unexpected audit params: %v", rec.params)
	}

	if len(p.events) != 1 || p.events[0].Type != telemetry.EventSettingsApplied {
		t.Fatalf("Expected one settingsApplied event, got %+v", p.events)
	}
	if p.events[0].Data["statusText"] != resp.StatusText {
		t.Errorf("Expected event status %q, got %v", resp.StatusText, p.events[0].Data["statusText"])
	}
}

func TestGetStatusAfterStartup(t *testing.T) {
	svc, _, a, _ := newConnectedService(t)

	resp, err := svc.GetStatus(context.Background(), StatusRequest{DeviceID: "DEV001"})
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if !resp.Success || resp.StatusText != "CONNECTED - IDLE" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if len(a.records) != 1 || a.records[0].action != "getStatus" {
		t.Errorf("Expected getStatus audit record, got %+v", a.records)
	}
}

func TestGetStatusWhenDisconnected(t *testing.T) {
	svc := NewService(device.New(), zerolog.Nop())

	resp, err := svc.GetStatus(context.Background(), StatusRequest{})
	if err != nil {
		t.Fatalf("GetStatus must never fail, got %v", err)
	}
	if !resp.Success || resp.StatusText != device.StatusDisconnected {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestApplySettingsDisconnected(t *testing.T) {
	svc, dev, a, p := newConnectedService(t)
	dev.Disconnect()

	resp, err := svc.ApplySettings(context.Background(), SettingsRequest{FrequencyMHz: 100, GainDB: 10, DeviceID: "DEV001"})
	if err == nil {
		t.Fatal("Expected error when disconnected")
	}
	if resp == nil {
		t.Fatal("Expected response alongside the error")
	}
	if resp.Success || resp.StatusText != device.StatusDisconnected {
		t.Errorf("Unexpected response: %+v", resp)
	}

	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("Expected ErrPreconditionFailed, got %v", err)
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("Expected *OperationError, got %T", err)
	}
	if opErr.Message != "Failed to apply RF settings on the device." {
		t.Errorf("Unexpected message %q", opErr.Message)
	}
	if opErr.Response != resp {
		t.Error("Expected error to carry the same response")
	}
	if opErr.ErrorCode() != "PRECONDITION_FAILED" {
		t.Errorf("Expected audit code PRECONDITION_FAILED, got %s", opErr.ErrorCode())
	}

	if len(a.records) != 1 || !errors.Is(a.records[0].err, ErrPreconditionFailed) {
		t.Errorf("Expected failed audit record, got %+v", a.records)
	}
	if len(p.events) != 1 || p.events[0].Type != telemetry.EventFault {
		t.Errorf("Expected fault event, got %+v", p.events)
	}
}

func TestApplySettingsPartialFailure(t *testing.T) {
	dev := &stubDevice{ok: false, status: device.StatusDisconnected}
	svc := NewService(dev, zerolog.Nop())

	resp, err := svc.ApplySettings(context.Background(), SettingsRequest{FrequencyMHz: 250.5, GainDB: 7})
	if err == nil || resp.Success {
		t.Fatalf("Expected failure, got resp=%+v err=%v", resp, err)
	}
	if len(dev.calls) != 1 || dev.calls[0] != [2]float64{250.5, 7} {
		t.Errorf("Expected one device call with both values, got %v", dev.calls)
	}
	if got := err.Error(); got != "PRECONDITION_FAILED: Failed to apply RF settings on the device." {
		t.Errorf("Unexpected error text %q", got)
	}
}

func TestServiceWithoutCollaborators(t *testing.T) {
	svc := NewService(&stubDevice{ok: true, status: "OPERATING - Freq: 1.0MHz, Gain: 2.0dB"}, zerolog.Nop())

	resp, err := svc.ApplySettings(context.Background(), SettingsRequest{FrequencyMHz: 1, GainDB: 2})
	if err != nil || !resp.Success {
		t.Errorf("Expected success without audit or publisher, got %+v %v", resp, err)
	}
}

func TestApplySettingsConcurrent(t *testing.T) {
	svc, _, _, _ := newConnectedService(t)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, g := float64(100+i), float64(i)/2
			resp, err := svc.ApplySettings(context.Background(), SettingsRequest{FrequencyMHz: f, GainDB: g})
			if err != nil {
				errs <- err
				return
			}
			if want := device.OperatingStatus(f, g); resp.StatusText != want {
				errs <- fmt.Errorf("got %q, want %q", resp.StatusText, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestApplySettingsNonFinite(t *testing.T) {
	svc, dev, a, _ := newConnectedService(t)
	hub := telemetry.NewHub(telemetry.Options{ReplayBuffer: 10, SubscriberBuffer: 10}, zerolog.Nop())
	defer hub.Stop()
	svc.SetPublisher(hub)
	sub := hub.Subscribe(0)

	resp, err := svc.ApplySettings(context.Background(), SettingsRequest{FrequencyMHz: math.NaN(), GainDB: math.Inf(-1), DeviceID: "DEV001"})
	if err != nil || !resp.Success {
		t.Fatalf("Expected non-finite settings to be accepted, got %+v %v", resp, err)
	}
	if resp.StatusText != "OPERATING - Freq: nanMHz, Gain: -infdB" {
		t.Errorf("Unexpected status %q", resp.StatusText)
	}
	if !math.IsNaN(dev.Snapshot().FrequencyMHz) {
		t.Error("Expected the device to hold NaN")
	}

	if len(a.records) != 1 || a.records[0].params["frequencyMHz"] != "nan" || a.records[0].params["gainDB"] != "-inf" {
		t.Errorf("Expected text params in audit record, got %+v", a.records)
	}

	var e telemetry.Event
	select {
	case e = <-sub.Events:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
	if e.Data["frequencyMHz"] != "nan" {
		t.Errorf("Expected nan text in event, got %v", e.Data["frequencyMHz"])
	}
	if _, err := json.Marshal(e); err != nil {
		t.Errorf("Expected event to encode, got %v", err)
	}
}

// stuckToken never completes until release is closed.
type stuckToken struct {
	release chan struct{}
}

func (t *stuckToken) Wait() bool {
	<-t.release
	return true
}

func (t *stuckToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.release:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *stuckToken) Done() <-chan struct{} { return t.release }
func (t *stuckToken) Error() error          { return nil }

type stuckBroker struct {
	token *stuckToken
}

func (b *stuckBroker) Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token {
	return b.token
}

func TestApplySettingsDoesNotWaitForBroker(t *testing.T) {
	svc, _, _, _ := newConnectedService(t)
	broker := &stuckBroker{token: &stuckToken{release: make(chan struct{})}}

	hub := telemetry.NewHub(telemetry.Options{SinkBuffer: 4}, zerolog.Nop())
	t.Cleanup(hub.Stop)
	t.Cleanup(func() { close(broker.token.release) })
	hub.AddSink(telemetry.NewMQTTSink(broker, "rfcontrol", 1, 5*time.Second, zerolog.Nop()))
	svc.SetPublisher(hub)

	start := time.Now()
	for i := 0; i < 10; i++ {
		if _, err := svc.ApplySettings(context.Background(), SettingsRequest{FrequencyMHz: float64(i), GainDB: 1, DeviceID: "DEV001"}); err != nil {
			t.Fatalf("ApplySettings failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected ApplySettings to return promptly, took %v", elapsed)
	}
}

func TestSettingsEventsFollowDeviceOrder(t *testing.T) {
	svc, dev, _, p := newConnectedService(t)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc.ApplySettings(context.Background(), SettingsRequest{FrequencyMHz: float64(i), GainDB: float64(i)})
		}(i)
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) != n {
		t.Fatalf("Expected %d events, got %d", n, len(p.events))
	}
	if last := p.events[n-1].Data["statusText"]; last != dev.Status() {
		t.Errorf("Expected last event status %q to match the device, got %v", dev.Status(), last)
	}
}
