package service

import (
	"context"
	"sync/atomic"
	"time"

	domainauth "github.com/target/storefront/internal/domain/auth"
	"github.com/target/storefront/internal/observability/metrics"
)

// GuardOutcome is what a protected page should do.
type GuardOutcome string

const (
	GuardLoading       GuardOutcome = "loading"
	GuardAllow         GuardOutcome = "allow"
	GuardRedirectLogin GuardOutcome = "redirect_login"
	GuardRedirectHome  GuardOutcome = "redirect_home"
)

// GuardDecision is the outcome of one guard evaluation.
type GuardDecision struct {
	Outcome GuardOutcome
	Target  string
	// Fired is true on the single evaluation of an attempt that issued its redirect.
	Fired bool
}

// Decide maps a session state and a required capability to a guard outcome.
// Every capability, CapabilityNone included, needs a signed-in user: pages
// open to anonymous visitors are simply not guarded. Authenticated users
// without the capability go home, never to login.
func Decide(state SessionState, required domainauth.Capability) GuardDecision {
	switch {
	case state.IsLoading:
		return GuardDecision{Outcome: GuardLoading}
	case state.User == nil:
		return GuardDecision{Outcome: GuardRedirectLogin, Target: domainauth.RouteLogin}
	case state.Roles().Satisfies(required):
		return GuardDecision{Outcome: GuardAllow}
	default:
		return GuardDecision{Outcome: GuardRedirectHome, Target: domainauth.RouteHome}
	}
}

// RouteGuard evaluates a client's session state against page requirements.
type RouteGuard struct {
	store   *SessionStore
	metrics *metrics.AuthMetrics
}

// NewRouteGuard constructs a RouteGuard over store.
func NewRouteGuard(store *SessionStore, m *metrics.AuthMetrics) *RouteGuard {
	if store == nil {
		panic("RouteGuard requires a SessionStore")
	}
	return &RouteGuard{store: store, metrics: m}
}

// Begin starts an access attempt. redirect is called at most once for the attempt.
func (g *RouteGuard) Begin(required domainauth.Capability, redirect func(target string)) *GuardAttempt {
	return &GuardAttempt{guard: g, required: required, redirect: redirect}
}

// GuardAttempt is one access attempt on a protected page.
type GuardAttempt struct {
	guard    *RouteGuard
	required domainauth.Capability
	redirect func(string)
	fired    atomic.Bool
}

// Evaluate decides against the current state, firing the redirect on the
// first redirecting evaluation only.
func (a *GuardAttempt) Evaluate() GuardDecision {
	return a.apply(Decide(a.guard.store.Snapshot(), a.required))
}

// Wait evaluates once loading settles or maxWait elapses, whichever is first.
func (a *GuardAttempt) Wait(ctx context.Context, maxWait time.Duration) GuardDecision {
	settled := make(chan struct{}, 1)
	unsubscribe := a.guard.store.Subscribe(func(s SessionState) {
		if !s.IsLoading {
			select {
			case settled <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if d := Decide(a.guard.store.Snapshot(), a.required); d.Outcome != GuardLoading || maxWait <= 0 {
		return a.apply(d)
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case <-settled:
	case <-timer.C:
	case <-ctx.Done():
	}
	return a.Evaluate()
}

func (a *GuardAttempt) apply(d GuardDecision) GuardDecision {
	switch d.Outcome {
	case GuardRedirectLogin, GuardRedirectHome:
		if a.fired.CompareAndSwap(false, true) {
			d.Fired = true
			if a.redirect != nil {
				a.redirect(d.Target)
			}
		}
	}
	a.guard.metrics.GuardDecision(string(a.required), string(d.Outcome))
	return d
}
