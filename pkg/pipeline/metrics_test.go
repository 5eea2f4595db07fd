package pipeline

import (
	"net/http/httptest"
	"testing"

	"github.com/pion/rtcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesRegisteredSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveFrame(true, 1.01)
	m.SessionsActive.Set(3)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "roc_receiver_frames_incomplete_total")
	require.Contains(t, body, "roc_receiver_sessions_active")
}

func TestMetricsAddLinkMetricsUpdatesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AddLinkMetrics(&rtcp.ReceptionReport{FractionLost: 128, Delay: 65536})

	require.InDelta(t, 0.5, testutil.ToFloat64(m.FractionLost), 0.001)
	require.InDelta(t, 1.0, testutil.ToFloat64(m.RoundTripTime), 0.001)
}

func TestMetricsAddLinkMetricsIgnoresNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AddLinkMetrics(nil)
	m.AddSendingMetrics(nil)
	require.Zero(t, testutil.ToFloat64(m.FractionLost))
}
