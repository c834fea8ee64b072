// Package control implements the control service that sits between the
// network boundaries and the RF device.
//
// The service forwards settings to the device, reports the outcome as both a
// response payload and an error, writes an audit record for every call and
// publishes telemetry events. It keeps no state between calls.
package control
