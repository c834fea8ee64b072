package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/radio-control/rfcontrol/internal/config"
)

// Publisher is the part of an MQTT client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token
}

// MQTTSink forwards events to an MQTT broker as JSON, one topic per device
// and event type. Heartbeats are not forwarded.
type MQTTSink struct {
	client  Publisher
	prefix  string
	qos     byte
	timeout time.Duration
	log     zerolog.Logger
}

// NewMQTTSink creates a sink publishing under prefix.
func NewMQTTSink(client Publisher, prefix string, qos byte, timeout time.Duration, log zerolog.Logger) *MQTTSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTSink{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     qos,
		timeout: timeout,
		log:     log.With().Str("component", "mqtt").Logger(),
	}
}

// Topic returns <prefix>/<deviceId>/<eventType>. Events without a device
// go under "server".
func Topic(prefix, deviceID, eventType string) string {
	if deviceID == "" {
		deviceID = "server"
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(prefix, "/"), deviceID, eventType)
}

// Deliver publishes the event and waits up to the sink timeout for the broker.
func (s *MQTTSink) Deliver(event Event) {
	if event.Type == EventHeartbeat {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Str("type", event.Type).Msg("failed to marshal event")
		return
	}

	topic := Topic(s.prefix, event.DeviceID, event.Type)
	token := s.client.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(s.timeout) {
		s.log.Warn().Str("topic", topic).Msg("MQTT publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
		return
	}
	s.log.Trace().Str("topic", topic).Int64("id", event.ID).Msg("published")
}

// ConnectMQTT connects to the configured broker. The client announces
// "online" on <prefix>/online after every (re)connect and leaves "offline"
// as its will.
func ConnectMQTT(cfg config.MQTTConfig, log zerolog.Logger) (MQTT.Client, error) {
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	availability := prefix + "/online"
	log = log.With().Str("component", "mqtt").Logger()

	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(time.Duration(cfg.ConnectTimeoutSec) * time.Second)
	opts.SetWill(availability, "offline", byte(cfg.QoS), true)
	opts.OnConnect = func(c MQTT.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("Connected")
		c.Publish(availability, byte(cfg.QoS), true, "online")
	}
	opts.OnConnectionLost = func(c MQTT.Client, err error) {
		log.Warn().Err(err).Msg("Connect lost")
	}

	client := MQTT.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(time.Duration(cfg.ConnectTimeoutSec) * time.Second) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}
	return client, nil
}

// DisconnectMQTT marks the server offline and closes the connection.
func DisconnectMQTT(client MQTT.Client, prefix string, qos byte) {
	if client.IsConnected() {
		client.Publish(strings.TrimSuffix(prefix, "/")+"/online", qos, true, "offline").WaitTimeout(time.Second)
	}
	client.Disconnect(250)
}
