package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Outcome("analysis", nil)
	m.Outcome("analysis", errors.New("boom"))
	m.Outcome("analysis", nil)

	body := scrape(t, m)
	if !strings.Contains(body, `signaldesk_requests_total{operation="analysis",outcome="ok"} 2`) {
		t.Fatalf("expected 2 ok requests, got:\n%s", body)
	}
	if !strings.Contains(body, `signaldesk_requests_total{operation="analysis",outcome="error"} 1`) {
		t.Fatalf("expected 1 failed request, got:\n%s", body)
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestNew_TwoRegistriesDoNotCollide(t *testing.T) {
	t.Parallel()

	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}

func TestHandler_ServesCollectors(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.FeedFallbacks.Inc()

	body := scrape(t, m)
	if !strings.Contains(body, "signaldesk_archive_fallbacks_total 1") {
		t.Fatalf("expected fallback counter in output, got:\n%s", body)
	}
}
