// Package telemetry implements the monitor's telemetry hub.
//
// The hub owns the liveness poller, the metrics reader, the log tail engine
// and the change watcher, and fans their output out to in-process
// subscribers as typed events. The SSE bridge in sse.go exposes the same
// events to HTTP clients, with a ready snapshot and per-client log replay on
// connect.
package telemetry
