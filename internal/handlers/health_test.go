package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestHealthzReportsUptimeAndBuildInfo(t *testing.T) {
	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	health := NewHealthHandlers(
		WithHealthClock(func() time.Time { return now }),
		WithHealthBuildInfo("1.4.0", "abc1234"),
	)
	now = now.Add(90 * time.Second)

	router := NewRouter(WithHealthHandlers(health))
	rec := doRequest(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["status"] != "ok" {
		t.Fatalf("unexpected status %v", payload["status"])
	}
	if payload["uptime"] != "1m30s" {
		t.Fatalf("unexpected uptime %v", payload["uptime"])
	}
	if payload["version"] != "1.4.0" || payload["revision"] != "abc1234" {
		t.Fatalf("unexpected build info %v", payload)
	}
}

func TestHealthzOmitsBuildInfoWhenUnset(t *testing.T) {
	router := NewRouter(WithHealthHandlers(NewHealthHandlers()))

	rec := doRequest(t, router, http.MethodGet, "/healthz", nil)
	payload := decodeBody(t, rec)
	if _, ok := payload["version"]; ok {
		t.Fatal("version should be omitted")
	}
	if _, ok := payload["revision"]; ok {
		t.Fatal("revision should be omitted")
	}
}

func TestReadyzWithoutCheck(t *testing.T) {
	router := NewRouter(WithHealthHandlers(NewHealthHandlers()))

	rec := doRequest(t, router, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decodeBody(t, rec)["status"] != "ready" {
		t.Fatal("unexpected status")
	}
}

func TestReadyzFailingCheck(t *testing.T) {
	health := NewHealthHandlers(WithHealthReadiness(func(context.Context) error {
		return errors.New("firestore: connection refused")
	}))
	router := NewRouter(WithHealthHandlers(health))

	rec := doRequest(t, router, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["status"] != "unavailable" {
		t.Fatalf("unexpected status %v", payload["status"])
	}
	if payload["error"] != "firestore: connection refused" {
		t.Fatalf("unexpected error %v", payload["error"])
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := NewRouter()

	rec := doRequest(t, router, http.MethodGet, "/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "route_not_found" {
		t.Fatal("unexpected error code")
	}
}
