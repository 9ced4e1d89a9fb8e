package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/storefront/internal/errors"
)

func TestAuthMetrics_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAuthMetrics(reg)

	m.ObserveResolution("store", 20*time.Millisecond)
	m.ObserveResolution("store", 0)
	m.ObserveResolution("admin_email", 0)
	m.IncTimeout()
	m.IncLateResult(nil)
	m.RoleStoreOp("query", apperrors.RoleQuery(errors.New("reset"), "query roles"))
	m.AuthOperation("sign_in", nil)
	m.ManagerOpened()
	m.ManagerOpened()
	m.ManagerClosed()
	m.GuardDecision("admin", "redirect_home")

	assert.InDelta(t, 2, testutil.ToFloat64(m.Resolutions.WithLabelValues("store")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ResolutionTimeouts), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.LateResults.WithLabelValues(ResultSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RoleStoreOps.WithLabelValues("query", ResultError, "role_query")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AuthOperations.WithLabelValues("sign_in", ResultSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.LiveManagers), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.GuardDecisions.WithLabelValues("admin", "redirect_home")), 0)
}

func TestAuthMetrics_NilIsNoop(t *testing.T) {
	var m *AuthMetrics
	assert.NotPanics(t, func() {
		m.ObserveResolution("store", time.Second)
		m.IncTimeout()
		m.IncLateResult(errors.New("x"))
		m.RoleStoreOp("insert", nil)
		m.AuthOperation("sign_out", nil)
		m.ManagerOpened()
		m.ManagerClosed()
		m.GuardDecision("client", "allow")
	})
}
