package command

import (
	"context"
	"time"
)

// ServicePort is what the API needs from the command service.
type ServicePort interface {
	Start(ctx context.Context) (*Result, error)
	Stop(ctx context.Context) (*Result, error)
}

// Publisher receives command outcomes. The telemetry hub implements it.
type Publisher interface {
	PublishPassthrough(source string, payload any) error
	ForceCheck()
}

// AuditLogger writes audit records for command actions.
type AuditLogger interface {
	LogAction(ctx context.Context, action, outcome, code string, latency time.Duration, detail string) error
}
