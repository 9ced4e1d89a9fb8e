package service

import (
	"log/slog"
	"sync/atomic"

	apperrors "github.com/target/storefront/internal/errors"
)

// RedirectLatch allows one redirect decision at a time for a browser client.
type RedirectLatch struct {
	held   atomic.Bool
	logger *slog.Logger
}

// NewRedirectLatch returns an open latch.
func NewRedirectLatch(logger *slog.Logger) *RedirectLatch {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedirectLatch{logger: logger}
}

// TryClaim claims the latch. It returns false when another decision holds it.
func (l *RedirectLatch) TryClaim() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release opens the latch. Releasing an open latch is logged as a violation.
func (l *RedirectLatch) Release() {
	if !l.held.CompareAndSwap(true, false) {
		err := apperrors.RedirectGuardViolation("redirect latch released while not held")
		l.logger.Error("redirect guard violation", "error", err)
	}
}

// Held reports whether a decision is in progress.
func (l *RedirectLatch) Held() bool {
	return l.held.Load()
}
