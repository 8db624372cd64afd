package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	authclient "github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot authclient.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authclient.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func scrape(t *testing.T, exp *PrometheusExporter) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestScrapeIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authclient.MetricsSnapshot{
			Counters: map[authclient.MetricID]uint64{
				authclient.MetricLoginAttempt: 7,
			},
			Histograms: map[authclient.MetricID][]uint64{
				authclient.MetricAuthLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := scrape(t, exp)
	for _, want := range []string{
		"authclient_login_attempt_total 7",
		"authclient_logout_total 0",
		`authclient_auth_latency_seconds_bucket{le="0.05"} 1`,
		`authclient_auth_latency_seconds_bucket{le="5"} 28`,
		`authclient_auth_latency_seconds_bucket{le="+Inf"} 36`,
		"authclient_auth_latency_seconds_count 36",
		"authclient_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHistogramOmittedWhenDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authclient.MetricsSnapshot{
			Counters:   map[authclient.MetricID]uint64{},
			Histograms: map[authclient.MetricID][]uint64{},
		},
	})

	if got, want := testutil.CollectAndCount(exp), len(internaldefs.CounterDefs)+1; got != want {
		t.Fatalf("collected %d metrics, want %d", got, want)
	}
	if strings.Contains(scrape(t, exp), "authclient_auth_latency_seconds") {
		t.Fatalf("histogram exported without samples")
	}
}

func TestExporterRegistersWithoutConflict(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	exp := NewPrometheusExporterFromSource(fakeSource{snapshot: authclient.MetricsSnapshot{}})
	if err := reg.Register(exp); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestExporterReadsLiveClient(t *testing.T) {
	cfg := authclient.DefaultConfig()
	cfg.API.BaseURL = "http://shop.test"
	client, err := authclient.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer client.Close()
	client.Metrics().Inc(authclient.MetricLogout)

	if !strings.Contains(scrape(t, NewPrometheusExporter(client)), "authclient_logout_total 1") {
		t.Fatalf("live counter not exported")
	}
}
