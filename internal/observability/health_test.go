package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if status.Service != "voice-coach" || status.Status != "healthy" {
		t.Errorf("Unexpected status %+v", status)
	}
}

func TestReadinessHandler(t *testing.T) {
	ok := func(context.Context) (bool, error) { return true, nil }
	failing := func(context.Context) (bool, error) { return false, errors.New("store unreachable") }

	tests := []struct {
		name   string
		checks map[string]HealthCheckFunc
		code   int
	}{
		{"no checks", nil, http.StatusOK},
		{"all healthy", map[string]HealthCheckFunc{"preferences": ok, "session": ok}, http.StatusOK},
		{"one failing", map[string]HealthCheckFunc{"preferences": failing, "session": ok}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ReadinessHandler(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tt.code {
				t.Errorf("Expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestReadinessHandler_ReportsMessage(t *testing.T) {
	checks := map[string]HealthCheckFunc{
		"history": func(context.Context) (bool, error) { return false, errors.New("timeout") },
	}
	rec := httptest.NewRecorder()
	ReadinessHandler(checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	dep := status.Dependencies["history"]
	if dep.Status != "unhealthy" || dep.Message != "timeout" {
		t.Errorf("Unexpected dependency status %+v", dep)
	}
	if status.Status != "not_ready" {
		t.Errorf("Expected not_ready, got %s", status.Status)
	}
}

func TestDiagnosticsMux_Metrics(t *testing.T) {
	NewSessionMetrics("test").RecordPacketSent(10)

	srv := httptest.NewServer(NewDiagnosticsMux(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestWithContext(t *testing.T) {
	if WithContext(context.Background()).GetLevel() == zerolog.Disabled {
		t.Error("Expected a usable logger without one attached")
	}
	l := WithCorrelationID("abc")
	ctx := ContextWithLogger(context.Background(), l)
	if got := WithContext(ctx); got.GetLevel() != l.GetLevel() {
		t.Error("Expected attached logger to be returned")
	}
}
