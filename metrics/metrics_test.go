package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NethermindEth/katana/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "katana",
		Subsystem: "test",
		Name:      "handler",
	})
	prometheus.MustRegister(counter)
	t.Cleanup(func() { prometheus.Unregister(counter) })
	counter.Add(3)

	srv := httptest.NewServer(metrics.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + metrics.Path)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "katana_test_handler 3")
	assert.Contains(t, string(body), "go_build_info")
}
