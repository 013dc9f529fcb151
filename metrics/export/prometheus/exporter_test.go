package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authcore "github.com/flowforward/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndDropped(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:   7,
				authcore.MetricReplayDetected: 2,
			},
		},
		dropped: 3,
	})

	out := exp.Render()
	if !strings.Contains(out, "authcore_login_success_total 7") {
		t.Fatalf("expected login_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_replay_detected_total 2") {
		t.Fatalf("expected replay_detected counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_logout_total 0") {
		t.Fatalf("expected zero-valued counters to render, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_audit_dropped_total 3") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricRefreshSuccess: 1,
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "authcore_refresh_success_total 1") {
		t.Fatalf("expected refresh counter in body, got:\n%s", rec.Body.String())
	}
}

func TestRenderNilSafe(t *testing.T) {
	var exp *PrometheusExporter
	if got := exp.Render(); got != "" {
		t.Fatalf("nil exporter rendered %q", got)
	}
}
