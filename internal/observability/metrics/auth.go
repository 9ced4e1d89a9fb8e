package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	obserrors "github.com/target/storefront/internal/observability/errors"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// AuthMetrics groups the collectors for the session and role core.
// A nil *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	Resolutions        *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram
	ResolutionTimeouts prometheus.Counter
	LateResults        *prometheus.CounterVec
	RoleStoreOps       *prometheus.CounterVec
	AuthOperations     *prometheus.CounterVec
	LiveManagers       prometheus.Gauge
	GuardDecisions     *prometheus.CounterVec
}

// NewAuthMetrics registers the collectors with reg. A nil reg uses the default registerer.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &AuthMetrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_role_resolutions_total",
			Help: "Role resolutions by source of the committed result",
		}, []string{"source"}),
		ResolutionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_role_resolution_duration_seconds",
			Help:    "Wall time until a role result was committed",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ResolutionTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "storefront_role_resolution_timeouts_total",
			Help: "Role resolutions that hit the soft timeout and committed a fallback",
		}),
		LateResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_role_resolution_late_results_total",
			Help: "Role queries that completed after their soft timeout",
		}, []string{"result"}),
		RoleStoreOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_role_store_operations_total",
			Help: "Role store calls by operation and result",
		}, []string{"op", "result", "error_class"}),
		AuthOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_operations_total",
			Help: "Sign-in, sign-up and sign-out attempts by result",
		}, []string{"op", "result"}),
		LiveManagers: f.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_session_managers",
			Help: "Browser session managers currently held by the registry",
		}),
		GuardDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_route_guard_decisions_total",
			Help: "Route guard outcomes by required capability",
		}, []string{"capability", "outcome"}),
	}
}

// ObserveResolution records a committed role result.
func (m *AuthMetrics) ObserveResolution(source string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(source).Inc()
	if elapsed > 0 {
		m.ResolutionDuration.Observe(elapsed.Seconds())
	}
}

// IncTimeout records a soft timeout.
func (m *AuthMetrics) IncTimeout() {
	if m == nil {
		return
	}
	m.ResolutionTimeouts.Inc()
}

// IncLateResult records a query finishing after its timeout.
func (m *AuthMetrics) IncLateResult(err error) {
	if m == nil {
		return
	}
	m.LateResults.WithLabelValues(resultFor(err)).Inc()
}

// RoleStoreOp records a role store call.
func (m *AuthMetrics) RoleStoreOp(op string, err error) {
	if m == nil {
		return
	}
	m.RoleStoreOps.WithLabelValues(op, resultFor(err), obserrors.Classify(err)).Inc()
}

// AuthOperation records an imperative auth operation.
func (m *AuthMetrics) AuthOperation(op string, err error) {
	if m == nil {
		return
	}
	m.AuthOperations.WithLabelValues(op, resultFor(err)).Inc()
}

// ManagerOpened increments the live manager gauge.
func (m *AuthMetrics) ManagerOpened() {
	if m == nil {
		return
	}
	m.LiveManagers.Inc()
}

// ManagerClosed decrements the live manager gauge.
func (m *AuthMetrics) ManagerClosed() {
	if m == nil {
		return
	}
	m.LiveManagers.Dec()
}

// GuardDecision records a route guard outcome.
func (m *AuthMetrics) GuardDecision(capability, outcome string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(capability, outcome).Inc()
}

func resultFor(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
