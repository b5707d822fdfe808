package telemetry

import (
	"encoding/json"

	"github.com/angel-control/angelmon/internal/jobs"
	"github.com/angel-control/angelmon/internal/liveness"
	"github.com/angel-control/angelmon/internal/logtail"
	"github.com/angel-control/angelmon/internal/metrics"
)

// Kind names an event type on the wire.
type Kind string

const (
	KindStatus  Kind = "status"
	KindStats   Kind = "stats"
	KindJobs    Kind = "jobsUpdate"
	KindMessage Kind = "message"
)

// AllKinds lists every event kind in publication order.
var AllKinds = []Kind{KindStatus, KindStats, KindJobs, KindMessage}

// Event is one of StatusEvent, StatsEvent, JobsEvent or MessageEvent.
type Event interface {
	Kind() Kind
	isEvent()
}

// StatusEvent reports a published liveness state.
type StatusEvent struct {
	liveness.State
}

// StatsEvent carries a fresh metrics snapshot.
type StatsEvent struct {
	Snapshot metrics.Snapshot
}

// JobsEvent carries the job list folded with worker liveness.
type JobsEvent struct {
	Jobs []jobs.Job `json:"jobs"`
}

// ClearNotice tells observers to drop what they hold for a stream.
type ClearNotice struct {
	Stream string `json:"stream"`
}

// Passthrough is an opaque message relayed from another component.
type Passthrough struct {
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

// MessageEvent carries exactly one of Entry, Clear or Passthrough.
type MessageEvent struct {
	Entry       *logtail.Entry `json:"entry,omitempty"`
	Clear       *ClearNotice   `json:"clear,omitempty"`
	Passthrough *Passthrough   `json:"passthrough,omitempty"`
}

func (StatusEvent) Kind() Kind  { return KindStatus }
func (StatsEvent) Kind() Kind   { return KindStats }
func (JobsEvent) Kind() Kind    { return KindJobs }
func (MessageEvent) Kind() Kind { return KindMessage }

func (StatusEvent) isEvent()  {}
func (StatsEvent) isEvent()   {}
func (JobsEvent) isEvent()    {}
func (MessageEvent) isEvent() {}

// MarshalJSON encodes the snapshot itself rather than a wrapper object.
func (e StatsEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Snapshot)
}

// EntryMessage wraps a log entry.
func EntryMessage(entry logtail.Entry) MessageEvent {
	return MessageEvent{Entry: &entry}
}

// ClearMessage wraps a clear notice for stream.
func ClearMessage(stream string) MessageEvent {
	return MessageEvent{Clear: &ClearNotice{Stream: stream}}
}
