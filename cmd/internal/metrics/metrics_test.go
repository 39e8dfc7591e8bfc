package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectors_Count(t *testing.T) {
	c := New()

	c.AdmissionDecision("admitted")
	c.AdmissionDecision("admitted")
	c.LedgerOp("grant", "ok")
	c.SweepDeleted("states", 4)
	c.SweepDeleted("states", 0)
	c.StateIssued("guild")
	c.StateConsumed("invalid")
	c.OAuthExchange("provider_error")
	c.ObserveHTTP(http.MethodGet, "GET /callback", 302, 5*time.Millisecond)
	c.FeedClientsDelta(2)
	c.FeedClientsDelta(-1)
	c.FeedDropped()

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"admission", testutil.ToFloat64(c.admission.WithLabelValues("admitted")), 2},
		{"ledger", testutil.ToFloat64(c.ledgerOps.WithLabelValues("grant", "ok")), 1},
		{"sweep", testutil.ToFloat64(c.sweepDeleted.WithLabelValues("states")), 4},
		{"issued", testutil.ToFloat64(c.stateIssued.WithLabelValues("guild")), 1},
		{"consumed", testutil.ToFloat64(c.stateConsumed.WithLabelValues("invalid")), 1},
		{"exchange", testutil.ToFloat64(c.oauthExchange.WithLabelValues("provider_error")), 1},
		{"http", testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "GET /callback", "3xx")), 1},
		{"feed clients", testutil.ToFloat64(c.feedClients), 1},
		{"feed dropped", testutil.ToFloat64(c.feedDropped), 1},
	}
	for _, ck := range checks {
		if ck.got != ck.want {
			t.Fatalf("%s got=%v want=%v", ck.name, ck.got, ck.want)
		}
	}
}

func TestHandler_Exposes(t *testing.T) {
	c := New()
	c.LedgerOp("ban", "already_blacklisted")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status got=%d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `guildgate_ledger_operations_total{op="ban",result="already_blacklisted"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}

func TestNilCollectors_NoPanic(t *testing.T) {
	var c *Collectors
	c.AdmissionDecision("x")
	c.LedgerOp("x", "y")
	c.SweepDeleted("x", 1)
	c.StateIssued("x")
	c.StateConsumed("x")
	c.OAuthExchange("x")
	c.ObserveHTTP("GET", "", 200, time.Millisecond)
	c.FeedClientsDelta(1)
	c.FeedDropped()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("disabled metrics status got=%d want=404", rec.Code)
	}
}
