// Package api implements the monitor's HTTP API.
//
// Read endpoints expose the hub's current status, metrics snapshot, jobs and
// buffered logs; /telemetry streams the same data as server-sent events;
// command endpoints forward start and stop to the agent. Every JSON response
// uses the {result, data, code, message, details, correlationId} envelope.
package api
