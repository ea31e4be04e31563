// Package metrics exports the collectors registered with the default prometheus
// registerer. Components never register collectors themselves: the node hands them
// listeners that do, and only when metrics are enabled.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Path = "/metrics"

var buildInfoOnce sync.Once

// Handler serves the default gatherer. The build information of the binary is
// registered the first time it is called.
func Handler() http.Handler {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(collectors.NewBuildInfoCollector())
	})
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		Registry: prometheus.DefaultRegisterer,
	})
}
