package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	Register()
	Register()
}

func TestHandlerExposesMetrics(t *testing.T) {
	UpstreamRequestsTotal.WithLabelValues("places", "ok").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `trashtalkers_upstream_requests_total{result="ok",service="places"}`) {
		t.Errorf("expected upstream counter in output, got:\n%s", body)
	}
}

func TestPipelineCounter(t *testing.T) {
	before := testutil.ToFloat64(PipelineRunsTotal.WithLabelValues("done"))
	PipelineRunsTotal.WithLabelValues("done").Inc()
	if got := testutil.ToFloat64(PipelineRunsTotal.WithLabelValues("done")); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}
}
