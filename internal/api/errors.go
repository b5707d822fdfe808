package api

import (
	"errors"
	"net/http"

	"github.com/angel-control/angelmon/internal/command"
	"github.com/angel-control/angelmon/internal/logtail"
)

// apiError pairs an envelope code with its HTTP status and message.
type apiError struct {
	code    string
	status  int
	message string
}

var errorTable = []struct {
	target error
	apiError
}{
	{command.ErrUnavailable, apiError{"UNAVAILABLE", http.StatusServiceUnavailable, "Agent is unavailable"}},
	{command.ErrTimeout, apiError{"TIMEOUT", http.StatusGatewayTimeout, "Agent did not respond in time"}},
	{command.ErrRejected, apiError{"REJECTED", http.StatusConflict, "Agent rejected the command"}},
	{logtail.ErrUnknownStream, apiError{"NOT_FOUND", http.StatusNotFound, "Unknown log stream"}},
}

// toAPIError maps err to an envelope code, HTTP status and message.
// Unknown errors are internal.
func toAPIError(err error) apiError {
	for _, entry := range errorTable {
		if errors.Is(err, entry.target) {
			return entry.apiError
		}
	}
	return apiError{"INTERNAL", http.StatusInternalServerError, "Internal server error"}
}

// writeErr writes err using the envelope code table.
func writeErr(w http.ResponseWriter, err error, details interface{}) {
	e := toAPIError(err)
	WriteError(w, e.status, e.code, e.message, details)
}
