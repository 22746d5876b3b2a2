package warden

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	backupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_backups_total",
		Help: "Total number of backup runs, partitioned by outcome",
	}, []string{"status"})

	updatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_updates_total",
		Help: "Total number of image update checks, partitioned by result",
	}, []string{"result"})

	appRestartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_app_restarts_total",
		Help: "Total number of application restarts, partitioned by reason",
	}, []string{"reason"})

	appUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "warden_app_up",
		Help: "Whether the application process is currently running",
	})
)

// InitMetrics registers the Prometheus metrics and starts an HTTP listener
// exposing them on addr. Listener failures are journaled, not fatal.
func InitMetrics(addr string, j Journaler) {
	prometheus.MustRegister(backupsTotal, updatesTotal, appRestartsTotal, appUp)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		if err := http.ListenAndServe(addr, mux); err != nil {
			j.Write(&EventWarning{
				Component: "metrics",
				Error:     "listener failed: " + err.Error(),
			})
		}
	}()
}
