// Package telemetry fans device events out to Server-Sent Events subscribers
// and optional sinks such as an MQTT broker.
//
// Every published event gets a monotonic ID. The hub keeps the most recent
// events in a bounded replay buffer so an SSE client reconnecting with a
// Last-Event-ID header receives what it missed. Subscribers that fall behind
// lose events instead of blocking publishers.
package telemetry
