package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Observe(t *testing.T) {
	m := New()

	m.ObserveRetrieval(OutcomeHit, 20*time.Millisecond)
	m.ObserveRetrieval(OutcomeEmpty, 10*time.Millisecond)
	m.ObserveRetrieval(OutcomeHit, 5*time.Millisecond)
	m.ObserveEmbeddingAttempt(OutcomeError)
	m.ObservePolicyAction(PolicyDeclined)
	m.ObserveHTTPRequest("POST", "/api/v1/query", 200, time.Millisecond)
	m.SetActiveSessions(3)

	if got := testutil.ToFloat64(m.RetrievalsTotal.WithLabelValues(OutcomeHit)); got != 2 {
		t.Errorf("retrievals{hit} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.EmbeddingAttemptsTotal.WithLabelValues(OutcomeError)); got != 1 {
		t.Errorf("embedding_attempts{error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PolicyActionsTotal.WithLabelValues(PolicyDeclined)); got != 1 {
		t.Errorf("policy_actions{declined} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/query", "200")); got != 1 {
		t.Errorf("http_requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 3 {
		t.Errorf("active_sessions = %v, want 3", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRetrieval(OutcomeHit, time.Second)
	m.ObserveEmbeddingAttempt(OutcomeOK)
	m.ObserveGeneration(OutcomeOK, time.Second)
	m.ObserveToolCall("search")
	m.ObservePolicyAction(PolicyDeclined)
	m.ObserveHTTPRequest("GET", "/", 200, time.Second)
	m.ObserveDocument(OutcomeOK)
	m.SetActiveSessions(1)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New(), New()
	a.ObserveToolCall("search_investment_research")

	if got := testutil.ToFloat64(b.ToolCallsTotal.WithLabelValues("search_investment_research")); got != 0 {
		t.Errorf("second registry tool_calls = %v, want 0", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveGeneration(OutcomeOK, 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Handler() status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `research_generations_total{outcome="ok"} 1`) {
		t.Errorf("Handler() body missing generation counter:\n%s", rec.Body.String())
	}
}
