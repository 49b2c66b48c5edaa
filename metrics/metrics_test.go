// SPDX-License-Identifier: GPL-3.0-or-later

package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rbmk-project/shuffler/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.PacketReceived()
		m.PacketMalformed()
		m.PacketDropped()
		m.PacketScheduled(time.Second)
		m.PacketForwarded(10, "")
		m.PacketForwarded(10, "ECONNREFUSED")
	})
	assert.NotNil(t, m.Handler())
}

func TestCounters(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.PacketReceived()
	m.PacketReceived()
	m.PacketReceived()
	m.PacketMalformed()
	m.PacketDropped()
	m.PacketScheduled(10 * time.Millisecond)
	m.PacketScheduled(20 * time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Received))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Malformed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Inflight))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Delay))

	m.PacketForwarded(100, "")
	m.PacketForwarded(5, "EHOSTUNREACH")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.Inflight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Forwarded))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.ForwardedBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForwardErrors.WithLabelValues("EHOSTUNREACH")))
}

func TestHandler(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.PacketReceived()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "shuffler_packets_received_total 1")
	assert.Contains(t, string(body), "shuffler_packets_inflight 0")
}

func TestNewWithoutRegistry(t *testing.T) {
	m := metrics.New(nil)
	m.PacketDropped()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped))
}
