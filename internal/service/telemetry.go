package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/target/storefront/internal/observability/metrics"
	"github.com/target/storefront/internal/observability/notify"
)

const tracerName = "storefront/service"

// IncidentNotifier receives auth incidents for out-of-band delivery.
type IncidentNotifier interface {
	NotifyAuthIncident(ctx context.Context, payload notify.AuthIncidentPayload)
}

// Telemetry bundles the optional observability dependencies shared by the auth services.
type Telemetry struct {
	Logger    *slog.Logger
	Metrics   *metrics.AuthMetrics
	Incidents IncidentNotifier
}

func (t Telemetry) logger(component string) *slog.Logger {
	if t.Logger != nil {
		return t.Logger.With("component", component)
	}
	return slog.Default().With("component", component)
}

// notify delivers an incident without blocking the caller.
func (t Telemetry) notify(ctx context.Context, payload notify.AuthIncidentPayload) {
	if t.Incidents == nil {
		return
	}
	go t.Incidents.NotifyAuthIncident(context.WithoutCancel(ctx), payload)
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
