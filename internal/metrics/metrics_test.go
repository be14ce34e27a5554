package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Inbound("a", InboundDispatched)
		m.Outbound("a", OutboundSent)
		m.Reconnect("a")
		m.SetState("a", "connected", []string{"connected"})
		m.ObservePoll("a", time.Second)
		m.Pool(PoolDial)
	})
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	m.Inbound("work", InboundDispatched)
	m.Inbound("work", InboundDispatched)
	m.Inbound("work", InboundRejected)
	m.Pool(PoolReuse)
	m.SetState("work", "connected", []string{"connecting", "connected"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.InboundTotal.WithLabelValues("work", InboundDispatched)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InboundTotal.WithLabelValues("work", InboundRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolEvents.WithLabelValues(PoolReuse)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccountState.WithLabelValues("work", "connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AccountState.WithLabelValues("work", "connecting")))
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)
	m.Outbound("work", OutboundSent)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "emailchannel_outbound_messages_total")
}
