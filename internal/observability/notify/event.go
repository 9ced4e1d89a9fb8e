package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// IncidentKind names the auth-core condition being reported.
type IncidentKind string

const (
	// IncidentResolutionTimeout fires when role resolution commits its fallback.
	IncidentResolutionTimeout IncidentKind = "resolution_timeout"
	// IncidentRoleAssignmentFailed fires when a role-less user could not be given the default role.
	IncidentRoleAssignmentFailed IncidentKind = "role_assignment_failed"
	// IncidentSignOutFailed fires when the provider rejects a sign-out.
	IncidentSignOutFailed IncidentKind = "sign_out_failed"
)

// AuthIncidentPayload captures the canonical data we emit for auth incidents.
type AuthIncidentPayload struct {
	Kind       IncidentKind
	UserID     string
	Email      string
	ClientID   string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming auth incidents.
type Sink interface {
	SendAuthIncident(ctx context.Context, payload AuthIncidentPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload AuthIncidentPayload) error

// SendAuthIncident implements the Sink interface.
func (f SinkFunc) SendAuthIncident(ctx context.Context, payload AuthIncidentPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
