package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"
)

const (
	healthResponse = `{"status":"ok"}`
	healthTimeout  = 2 * time.Second
)

var errNotFound = errors.New("resource not found")

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// healthHandler returns 200 when every check passes and 503 listing the
// failing dependencies otherwise.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		var failing []string
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failing = append(failing, name)
			}
		}

		if len(failing) > 0 {
			sort.Strings(failing)
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failing": failing})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.WriteString(w, healthResponse); err != nil {
			// Nothing more to do if the client connection is gone.
			return
		}
	}
}
