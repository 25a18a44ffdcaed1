package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *PrometheusCollector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestPrometheusCollector_Counters(t *testing.T) {
	c := NewPrometheusCollector(&MetricsConfig{Enabled: true, Prefix: "test"})

	c.IncSubscription("filtered")
	c.IncTransition("filtered")
	c.IncTransition("filtered")
	c.IncNotification("rule")
	c.IncNotification("brightness")
	c.IncDeliveryFailure()
	c.IncEvaluationError()
	c.IncReconnect()
	c.SetSessionState("streaming")
	c.RecordHTTPRequest("GET", "/health", 200, 5*time.Millisecond)

	out := scrape(t, c)
	for _, line := range []string{
		`test_subscriptions_total{mode="filtered"} 1`,
		`test_transitions_total{mode="filtered"} 2`,
		`test_notifications_total{kind="brightness"} 1`,
		`test_notifications_total{kind="rule"} 1`,
		`test_delivery_failures_total 1`,
		`test_evaluation_errors_total 1`,
		`test_session_reconnects_total 1`,
		`test_session_state{state="streaming"} 1`,
		`test_session_state{state="connecting"} 0`,
		`test_http_requests_total{method="GET",path="/health",status="200"} 1`,
	} {
		assert.Contains(t, out, line)
	}

	c.SetSessionState("disconnected")
	out = scrape(t, c)
	assert.Contains(t, out, `test_session_state{state="streaming"} 0`)
	assert.Contains(t, out, `test_session_state{state="disconnected"} 1`)
}

func TestPrometheusCollector_Disabled(t *testing.T) {
	c := NewPrometheusCollector(&MetricsConfig{Enabled: false, Prefix: "test"})
	c.IncDeliveryFailure()
	assert.Contains(t, scrape(t, c), "test_delivery_failures_total 0")
}

func TestPrometheusCollector_SeparateRegistries(t *testing.T) {
	c := NewPrometheusCollector(nil)
	c.IncNotification("rule")

	other := NewPrometheusCollector(nil)

	assert.True(t, strings.Contains(scrape(t, c), `watch_bridge_notifications_total{kind="rule"} 1`))
	assert.False(t, strings.Contains(scrape(t, other), `watch_bridge_notifications_total{kind="rule"}`))
}

func TestHealthChecker(t *testing.T) {
	h := NewHealthChecker()
	report := h.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Empty(t, report.Components)

	h.Register("database", func(ctx context.Context) HealthStatus {
		return HealthStatus{Status: StatusHealthy, Message: "ok"}
	})
	h.Register("home_assistant", func(ctx context.Context) HealthStatus {
		return HealthStatus{Status: StatusDegraded, Message: "reconnecting"}
	})

	report = h.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Len(t, report.Components, 2)
	assert.False(t, report.Components["database"].Timestamp.IsZero())

	h.Register("database", func(ctx context.Context) HealthStatus {
		return HealthStatus{Status: StatusUnhealthy, Message: "locked"}
	})
	assert.Equal(t, StatusUnhealthy, h.Check(context.Background()).Status)
}
