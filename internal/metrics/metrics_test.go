package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics_RegistersOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.FetchTotal.WithLabelValues("kraken").Inc()
	m.RegimeTransitions.WithLabelValues("WEAK_UPTREND").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{"regime_fetch_total", "regime_transitions_total"} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestHealthStatus_Healthy(t *testing.T) {
	h := NewHealthStatus(time.Minute, false)
	h.SetSQLiteOK(true)
	h.SetWatcherOK(true)
	h.MarkFetched("kraken:BTC:1h", time.Now())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var rep Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Status != "healthy" || rep.Instruments != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestHealthStatus_StaleIsDegraded(t *testing.T) {
	h := NewHealthStatus(time.Minute, false)
	h.SetSQLiteOK(true)
	h.SetWatcherOK(true)
	now := time.Now()
	h.MarkFetched("binance.us:ETH:1h", now.Add(-2*time.Minute))
	h.MarkFetched("binance.us:BTC:1h", now)

	rep, code := h.Snapshot(now)
	if code != http.StatusServiceUnavailable || rep.Status != "degraded" {
		t.Errorf("got %s/%d", rep.Status, code)
	}
	if len(rep.Stale) != 1 || rep.Stale[0] != "binance.us:ETH:1h" {
		t.Errorf("stale = %v", rep.Stale)
	}
}

func TestHealthStatus_RedisRequired(t *testing.T) {
	h := NewHealthStatus(0, true)
	h.SetSQLiteOK(true)
	h.SetWatcherOK(true)
	if _, code := h.Snapshot(time.Now()); code != http.StatusServiceUnavailable {
		t.Errorf("expected degraded without redis, got %d", code)
	}
	h.SetRedisConnected(true)
	if rep, code := h.Snapshot(time.Now()); code != http.StatusOK {
		t.Errorf("expected healthy, got %s/%d", rep.Status, code)
	}
}

func TestHealthStatus_Unhealthy(t *testing.T) {
	h := NewHealthStatus(0, false)
	if rep, _ := h.Snapshot(time.Now()); rep.Status != "unhealthy" {
		t.Errorf("status = %s", rep.Status)
	}
}
