package telemetry

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

type fakeToken struct {
	completed bool
	err       error
}

func (t *fakeToken) Wait() bool                     { return t.completed }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.completed }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.completed {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	token *fakeToken
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, _ := payload.([]byte)
	p.msgs = append(p.msgs, published{topic: topic, qos: qos, retained: retained, payload: b})
	if p.token != nil {
		return p.token
	}
	return &fakeToken{completed: true}
}

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix, device, typ, want string
	}{
		{"rfcontrol", "DEV001", EventSettingsApplied, "rfcontrol/DEV001/settingsApplied"},
		{"rfcontrol/", "DEV001", EventFault, "rfcontrol/DEV001/fault"},
		{"lab/rf", "", EventState, "lab/rf/server/state"},
	}
	for _, tt := range tests {
		if got := Topic(tt.prefix, tt.device, tt.typ); got != tt.want {
			t.Errorf("Topic(%q, %q, %q) = %q, want %q", tt.prefix, tt.device, tt.typ, got, tt.want)
		}
	}
}

func TestMQTTSinkDeliver(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, "rfcontrol", 1, time.Second, zerolog.Nop())

	sink.Deliver(Event{ID: 4, Type: EventSettingsApplied, DeviceID: "DEV001",
		Data: map[string]interface{}{"statusText": "OPERATING - Freq: 99.9MHz, Gain: 15.5dB"}})
	sink.Deliver(Event{ID: 5, Type: EventHeartbeat})

	if len(pub.msgs) != 1 {
		t.Fatalf("Expected exactly one publish (heartbeat skipped), got %d", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.topic != "rfcontrol/DEV001/settingsApplied" || msg.qos != 1 || msg.retained {
		t.Errorf("Unexpected publish: %+v", msg)
	}

	var e Event
	if err := json.Unmarshal(msg.payload, &e); err != nil {
		t.Fatalf("Payload is not JSON: %v", err)
	}
	if e.ID != 4 || e.Data["statusText"] != "OPERATING - Freq: 99.9MHz, Gain: 15.5dB" {
		t.Errorf("Unexpected payload: %+v", e)
	}
}

func TestMQTTSinkToleratesBrokerFailures(t *testing.T) {
	for _, token := range []*fakeToken{
		{completed: false},
		{completed: true, err: errors.New("not connected")},
	} {
		pub := &fakePublisher{token: token}
		sink := NewMQTTSink(pub, "rfcontrol", 0, 0, zerolog.Nop())
		sink.Deliver(Event{Type: EventFault, DeviceID: "DEV001"})
		if len(pub.msgs) != 1 {
			t.Errorf("Expected publish attempt, got %d", len(pub.msgs))
		}
	}
}

func TestHubForwardsToMQTTSink(t *testing.T) {
	hub := newTestHub(t, Options{ReplayBuffer: 4})
	pub := &fakePublisher{}
	hub.AddSink(NewMQTTSink(pub, "rfcontrol", 0, time.Second, zerolog.Nop()))

	hub.PublishDevice("SYS_TEST_01", EventFault, nil)
	waitFor(t, "MQTT publish", func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.msgs) > 0
	})

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.msgs) != 1 || pub.msgs[0].topic != "rfcontrol/SYS_TEST_01/fault" {
		t.Errorf("Unexpected MQTT traffic: %+v", pub.msgs)
	}
}
