package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/storefront/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches auth incidents to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	return &Service{
		logger: logger,
		sinks:  sinks,
	}
}

// NotifyAuthIncident fan-outs the incident payload to all sinks.
func (s *Service) NotifyAuthIncident(ctx context.Context, payload notify.AuthIncidentPayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}

	if payload.Kind == "" {
		s.logger.DebugContext(ctx, "skipping auth incident without kind", "user_id", payload.UserID)
		return
	}

	if payload.Severity == "" {
		payload.Severity = defaultSeverity(payload.Kind)
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now()
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendAuthIncident(ctx, payload); err != nil {
				s.logger.Error("failure notifier delivery error",
					"sink", entry.Name,
					"kind", payload.Kind,
					"user_id", payload.UserID,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

func defaultSeverity(kind notify.IncidentKind) string {
	if kind == notify.IncidentResolutionTimeout {
		return notify.SeverityWarning
	}
	return notify.SeverityCritical
}
