package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// gatherOne returns the metric family called name from reg.
func gatherOne(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s not found in gathered metrics", name)
	return nil
}

// hasLabels reports whether m carries every label pair in want.
func hasLabels(m *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_ObserveQuery(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveQuery("calculator", "completed", 20*time.Millisecond)
	m.ObserveQuery("calculator", "completed", 30*time.Millisecond)
	m.ObserveQuery("document_qa", "failed", time.Second)

	mf := gatherOne(t, reg, "raga_query_requests_total")
	found := false
	for _, metric := range mf.GetMetric() {
		if hasLabels(metric, map[string]string{"tool": "calculator", "status": "completed"}) {
			found = true
			if got := metric.GetCounter().GetValue(); got != 2 {
				t.Errorf("want counter=2, got %v", got)
			}
		}
	}
	if !found {
		t.Error(`raga_query_requests_total{tool="calculator",status="completed"} not found`)
	}

	hist := gatherOne(t, reg, "raga_query_duration_seconds")
	if len(hist.GetMetric()) != 2 {
		t.Errorf("want 2 tool series, got %d", len(hist.GetMetric()))
	}
}

func Test_Metrics_IngestRetrievalAndRetry(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveIngest("succeeded", 4)
	m.ObserveIngest("failed", 0)
	m.ObserveRetrieval(3)
	m.OnRetry("embed.documents", 1, errors.New("reset"), time.Millisecond)
	m.OnRetry("embed.documents", 2, errors.New("reset"), time.Millisecond)

	if got := gatherOne(t, reg, "raga_ingest_chunks_total").GetMetric()[0].GetCounter().GetValue(); got != 4 {
		t.Errorf("want chunks_total=4, got %v", got)
	}
	if got := len(gatherOne(t, reg, "raga_ingest_documents_total").GetMetric()); got != 2 {
		t.Errorf("want 2 status series, got %d", got)
	}
	if got := gatherOne(t, reg, "raga_retrieval_results").GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("want 1 retrieval sample, got %d", got)
	}
	retries := gatherOne(t, reg, "raga_retry_attempts_total").GetMetric()[0]
	if !hasLabels(retries, map[string]string{"operation": "embed.documents"}) || retries.GetCounter().GetValue() != 2 {
		t.Errorf("unexpected retry series: %v", retries)
	}
}
