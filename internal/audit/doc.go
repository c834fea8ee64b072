// Package audit implements the append-only action log for the RF control server.
//
// Every control and maintenance action is recorded as one JSON line carrying the
// actor, device id, parameters, outcome, normalized code and latency. Files are
// rotated by size through lumberjack.
package audit
