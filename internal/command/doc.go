// Package command forwards start and stop requests to the supervised agent.
//
// Every request is bounded by the configured timeout, recorded in the audit
// log and echoed to telemetry observers as a passthrough message. The service
// then asks the liveness poller for an immediate re-check so the published
// status follows the command without waiting for the next tick.
package command
