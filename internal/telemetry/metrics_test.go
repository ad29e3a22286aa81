package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickedit/internal/models"
)

func TestMetrics_ObserveRun(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveRun(models.RunSummary{Action: "inventory_zero", Outcome: models.OutcomeSuccess, Scanned: 10, Matched: 3, Updated: 2, Failed: 1, CostUsed: 40, Elapsed: 2 * time.Second})
	m.ObserveRun(models.RunSummary{Action: "inventory_zero", Outcome: models.OutcomeSuccess, Truncated: true})
	m.ObserveRun(models.RunSummary{Action: "ean", Outcome: models.OutcomeError})
	m.Mutation("updated")
	m.Retry("list_products")
	m.Retry("list_products")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory_zero", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory_zero", "truncated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ean", "error")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.products.WithLabelValues("scanned")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.products.WithLabelValues("updated")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.cost))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("updated")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.retries.WithLabelValues("list_products")))
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	active := 2
	m.TrackTriggers(func() int { return active })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "quickedit_active_triggers 2")
}
