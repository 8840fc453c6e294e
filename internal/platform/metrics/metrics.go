// Package metrics exposes the Prometheus registry over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Build identifies the running binary on dashboards.
var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "timeclock_build_info",
	Help: "Build information for the running timeclock binary",
}, []string{"component"})

// MarkStarted records that component is running.
func MarkStarted(component string) {
	buildInfo.WithLabelValues(component).Set(1)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
