package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BradenHooton/sentinel/internal/metrics"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestDecisionsTotal_Increments(t *testing.T) {
	counter := metrics.DecisionsTotal.WithLabelValues("block", "tor_exit_node")
	before := counterValue(t, counter)
	counter.Inc()
	assert.Equal(t, before+1, counterValue(t, counter))
}

func TestHandler_ExposesNamespace(t *testing.T) {
	metrics.AuditDroppedTotal.Add(0)
	metrics.GuardTrackedKeys.Set(3)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "sentinel_guard_tracked_keys 3"))
	assert.True(t, strings.Contains(body, "sentinel_audit_dropped_total"))
}
