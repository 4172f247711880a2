package handlers

import (
	"context"
	"net/http"
	"time"
)

// ReadinessCheck reports whether the service's backing dependencies are
// reachable. A nil check means the service is always ready.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	version   string
	revision  string
	clock     func() time.Time
	startedAt time.Time
	readiness ReadinessCheck
}

// HealthOption customizes health handler construction.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo reports version and revision in the liveness payload.
func WithHealthBuildInfo(version, revision string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
		h.revision = revision
	}
}

// WithHealthClock overrides the wall clock, for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthReadiness installs the dependency probe behind /readyz.
func WithHealthReadiness(check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		h.readiness = check
	}
}

func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.startedAt = h.clock().UTC()
	return h
}

func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status": "ok",
		"uptime": h.clock().UTC().Sub(h.startedAt).Truncate(time.Second).String(),
	}
	if h.version != "" {
		payload["version"] = h.version
	}
	if h.revision != "" {
		payload["revision"] = h.revision
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.readiness != nil {
		if err := h.readiness(r.Context()); err != nil {
			writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ready"})
}
