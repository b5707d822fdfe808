package command

import (
	"context"
	"errors"
	"net/http"
)

// Normalized command errors.
var (
	ErrUnavailable = errors.New("UNAVAILABLE")
	ErrTimeout     = errors.New("TIMEOUT")
	ErrRejected    = errors.New("REJECTED")
	ErrInternal    = errors.New("INTERNAL")
)

// Code returns the normalized code for err, or "SUCCESS" for nil.
func Code(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	case errors.Is(err, ErrUnavailable):
		return ErrUnavailable.Error()
	case errors.Is(err, ErrTimeout):
		return ErrTimeout.Error()
	case errors.Is(err, ErrRejected):
		return ErrRejected.Error()
	default:
		return ErrInternal.Error()
	}
}

// statusErrors maps agent HTTP statuses to normalized errors. Statuses not
// listed fall back by class: other 4xx reject, other 5xx are internal.
var statusErrors = map[int]error{
	http.StatusConflict:           ErrRejected,
	http.StatusTooManyRequests:    ErrRejected,
	http.StatusBadGateway:         ErrUnavailable,
	http.StatusServiceUnavailable: ErrUnavailable,
	http.StatusGatewayTimeout:     ErrTimeout,
}

func errorForStatus(status int) error {
	if err, ok := statusErrors[status]; ok {
		return err
	}
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 400 && status < 500:
		return ErrRejected
	default:
		return ErrInternal
	}
}

// errorForTransport maps a failed round trip to a normalized error.
func errorForTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrUnavailable
}
