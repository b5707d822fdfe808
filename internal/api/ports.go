package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angel-control/angelmon/internal/command"
	"github.com/angel-control/angelmon/internal/jobs"
	"github.com/angel-control/angelmon/internal/liveness"
	"github.com/angel-control/angelmon/internal/logtail"
	"github.com/angel-control/angelmon/internal/metrics"
	"github.com/angel-control/angelmon/internal/telemetry"
)

// TelemetryPort defines what the API needs from the telemetry hub.
type TelemetryPort interface {
	ServeSSE(w http.ResponseWriter, r *http.Request) error
	Status() liveness.State
	LastStats() *metrics.Snapshot
	Jobs() []jobs.Job
	Logs(stream string) ([]logtail.Entry, error)
	Streams() []string
	ForceCheck()
	ForceEmitStatus()
	Running() bool
	Registry() *prometheus.Registry
}

// Compile-time assertions for port conformance
var _ TelemetryPort = (*telemetry.Hub)(nil)
var _ command.ServicePort = (*command.Service)(nil)
