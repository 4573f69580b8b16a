package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/items/{id}", "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/items/{id}", "418")))
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(leadTransitions.WithLabelValues("followups", "aborted"))
	RecordLeadTransition("followups", "aborted")
	assert.Equal(t, before+1, testutil.ToFloat64(leadTransitions.WithLabelValues("followups", "aborted")))

	before = testutil.ToFloat64(webhookEvents.WithLabelValues("monday", "processed"))
	RecordWebhookEvent("monday", "processed")
	assert.Equal(t, before+1, testutil.ToFloat64(webhookEvents.WithLabelValues("monday", "processed")))

	RecordSchedulerRun("initial_messages", "completed", time.Second)
	RecordIntegrationError("monday")
	assert.Equal(t, 1, testutil.CollectAndCount(schedulerRuns))
}
