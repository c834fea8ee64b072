// Package device implements the simulated RF device.
//
// A Device holds connection and configuration state for exactly one radio and
// exposes connect, disconnect, set-frequency, set-gain, identify and status
// operations with their connection preconditions. Failures are reported as
// boolean results; the device never aborts the caller.
package device
