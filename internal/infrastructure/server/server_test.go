package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rootserve/core/internal/infrastructure/config"
	"github.com/rootserve/core/internal/infrastructure/logger"
	"github.com/rootserve/core/internal/infrastructure/metrics"
)

type staticReadiness bool

func (r staticReadiness) Ready() bool { return bool(r) }

func newAdmin(ready ReadinessChecker) (*AdminServer, *metrics.Metrics) {
	cfg := &config.Config{App: config.AppConfig{Version: "test"}}
	m := metrics.New()
	return NewAdmin(cfg, m, ready, logger.NewNop()), m
}

func get(s *AdminServer, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestAdminHealth(t *testing.T) {
	s, _ := newAdmin(staticReadiness(true))

	rec := get(s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Status  string            `json:"status"`
		Version map[string]string `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Version["app"] != "test" {
		t.Errorf("body = %+v", body)
	}
}

func TestAdminReadiness(t *testing.T) {
	tests := []struct {
		name  string
		ready ReadinessChecker
		code  int
	}{
		{"ready", staticReadiness(true), http.StatusOK},
		{"not ready", staticReadiness(false), http.StatusServiceUnavailable},
		{"no listener", nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newAdmin(tt.ready)
			if rec := get(s, "/ready"); rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestAdminMetrics(t *testing.T) {
	s, m := newAdmin(staticReadiness(true))
	m.ConnectionRejected()

	rec := get(s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rootserve_connections_rejected_total 1") {
		t.Errorf("metrics output missing rejected counter:\n%s", rec.Body.String())
	}
}

func TestAdminUnknownRoute(t *testing.T) {
	s, _ := newAdmin(staticReadiness(true))

	rec := get(s, "/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "message") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestAdminDebugFollowsEnvironment(t *testing.T) {
	for env, want := range map[string]bool{
		"development": true,
		"production":  false,
		"test":        false,
	} {
		cfg := &config.Config{App: config.AppConfig{Environment: env}}
		s := NewAdmin(cfg, metrics.New(), staticReadiness(true), logger.NewNop())
		if s.echo.Debug != want {
			t.Errorf("%s: Debug = %v, want %v", env, s.echo.Debug, want)
		}
	}
}
