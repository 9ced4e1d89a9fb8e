package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/target/storefront/internal/observability/notify"
)

func TestServiceNotifyAuthIncident(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var received []notify.AuthIncidentPayload
	capture := notify.SinkFunc(func(ctx context.Context, payload notify.AuthIncidentPayload) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, payload)
		return nil
	})
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "capture", Sink: capture},
			{Name: "", Sink: capture},
			{Name: "nil"},
		},
	})

	svc.NotifyAuthIncident(ctx, notify.AuthIncidentPayload{
		Kind:   notify.IncidentResolutionTimeout,
		UserID: "user-1",
	})

	if len(received) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(received))
	}
	if received[0].Severity != notify.SeverityWarning {
		t.Fatalf("expected timeout severity to default to warning, got %s", received[0].Severity)
	}
	if received[0].OccurredAt.IsZero() {
		t.Fatal("expected OccurredAt to be stamped")
	}
}

func TestServiceSeverityDefaults(t *testing.T) {
	var got string
	svc := NewService(Options{
		Sinks: []SinkRegistration{{
			Name: "capture",
			Sink: notify.SinkFunc(func(ctx context.Context, payload notify.AuthIncidentPayload) error {
				got = payload.Severity
				return nil
			}),
		}},
	})

	svc.NotifyAuthIncident(context.Background(), notify.AuthIncidentPayload{Kind: notify.IncidentSignOutFailed})
	if got != notify.SeverityCritical {
		t.Fatalf("expected sign-out failure to be critical, got %s", got)
	}
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{})
	if svc.Enabled() {
		t.Fatal("expected Enabled() to be false when no sinks registered")
	}
	var nilSvc *Service
	if nilSvc.Enabled() {
		t.Fatal("expected nil service to be disabled")
	}
	nilSvc.NotifyAuthIncident(context.Background(), notify.AuthIncidentPayload{Kind: notify.IncidentSignOutFailed})
}

func TestServiceLogsErrors(t *testing.T) {
	// Ensure we don't panic when sink returns an error.
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "fail",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.AuthIncidentPayload) error {
					return errors.New("boom")
				}),
			},
		},
	})

	svc.NotifyAuthIncident(context.Background(), notify.AuthIncidentPayload{Kind: notify.IncidentRoleAssignmentFailed})
}

func TestServiceSkipsPayloadWithoutKind(t *testing.T) {
	var called bool
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "capture",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.AuthIncidentPayload) error {
					called = true
					return nil
				}),
			},
		},
	})

	svc.NotifyAuthIncident(context.Background(), notify.AuthIncidentPayload{UserID: "u"})

	if called {
		t.Fatal("expected sink not to be invoked for payload without kind")
	}
}
