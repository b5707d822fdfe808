package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Response is the body of every JSON reply from the monitor. Result is "ok"
// or "error"; Code and Message are set only on errors. Each reply gets a
// fresh CorrelationID so clients can quote it when reporting a problem.
type Response struct {
	Result        string      `json:"result"`
	Data          interface{} `json:"data,omitempty"`
	Code          string      `json:"code,omitempty"`
	Message       string      `json:"message,omitempty"`
	Details       interface{} `json:"details,omitempty"`
	CorrelationID string      `json:"correlationId"`
}

func newResponse(result string) *Response {
	return &Response{Result: result, CorrelationID: uuid.NewString()}
}

// SuccessResponse wraps status, logs or command results.
func SuccessResponse(data interface{}) *Response {
	resp := newResponse("ok")
	resp.Data = data
	return resp
}

// ErrorResponse carries a code from the table in errors.go, or one of the
// route-level codes (METHOD_NOT_ALLOWED, UNAVAILABLE, SERVICE_DEGRADED).
func ErrorResponse(code, message string, details interface{}) *Response {
	resp := newResponse("error")
	resp.Code = code
	resp.Message = message
	resp.Details = details
	return resp
}

// WriteSuccess replies 200 with data.
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	writeResponse(w, http.StatusOK, SuccessResponse(data))
}

// WriteError replies with statusCode and an error body.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details interface{}) {
	writeResponse(w, statusCode, ErrorResponse(code, message, details))
}

func writeMethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		fmt.Sprintf("Only %s method is allowed", allowed), nil)
}

// writeResponse encodes before writing headers so an unencodable payload
// still yields a clean 500.
func writeResponse(w http.ResponseWriter, statusCode int, response *Response) {
	body, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "response encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = w.Write(append(body, '\n'))
}
