package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gabigallardo/control-panel/internal/config"
	"github.com/gabigallardo/control-panel/internal/fallback"
)

func TestSetupDisabledReturnsNilProvider(t *testing.T) {
	provider, err := Setup(context.Background(), config.ObservabilityConfig{})
	require.NoError(t, err)
	require.Nil(t, provider)

	// nil providers are safe to record against
	provider.RecordFallback("billing", fallback.ReasonTimeout)
	provider.RecordBillingFetch("organization/costs", 200, time.Second)
	provider.RecordStoreQuery("session_count", time.Millisecond, nil)
	provider.RecordHTTPRequest(context.Background(), http.MethodGet, "/", 200, time.Millisecond)
	require.Nil(t, provider.PrometheusHandler())
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestMetricsExposed(t *testing.T) {
	provider, err := Setup(context.Background(), config.ObservabilityConfig{EnableMetrics: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	provider.RecordHTTPRequest(context.Background(), http.MethodGet, "/api/dashboard", 200, 30*time.Millisecond)
	provider.RecordBillingFetch("organization/usage/completions", 503, 2*time.Second)
	provider.RecordFallback("billing", fallback.ReasonUpstreamError)
	provider.RecordStoreQuery("unique_users", 5*time.Millisecond, errors.New("boom"))

	srv := httptest.NewServer(provider.PrometheusHandler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	require.Contains(t, text, `control_panel_http_requests_total{method="GET",route="/api/dashboard",status="200"} 1`)
	require.Contains(t, text, `control_panel_billing_fetch_duration_seconds_count{endpoint="organization/usage/completions",status="503"} 1`)
	require.Contains(t, text, `control_panel_fallbacks_total{reason="upstream_error",source="billing"} 1`)
	require.Contains(t, text, `control_panel_store_query_duration_seconds_count{outcome="error",query="unique_users"} 1`)
}
