// Package liveness tracks whether the primary agent process and its worker are
// running and folds the two flags into a three-state status.
package liveness

import "fmt"

// Status is the folded liveness of the supervised pair.
type Status int

const (
	// Offline: the primary process is not running.
	Offline Status = iota
	// Standby: the primary is running, the worker is not.
	Standby
	// Active: both processes are running.
	Active
)

// Derive maps the two liveness flags to a Status. Status depends only on the
// current pair, never on history.
func Derive(primaryAlive, workerAlive bool) Status {
	switch {
	case primaryAlive && workerAlive:
		return Active
	case primaryAlive:
		return Standby
	default:
		return Offline
	}
}

func (s Status) String() string {
	switch s {
	case Offline:
		return "OFFLINE"
	case Standby:
		return "STANDBY"
	case Active:
		return "ACTIVE"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText encodes the status by name so JSON consumers see "ACTIVE".
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is the poller's view of the process table.
type State struct {
	PrimaryAlive bool   `json:"primaryAlive"`
	WorkerAlive  bool   `json:"workerAlive"`
	Status       Status `json:"status"`
}
