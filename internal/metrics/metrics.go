// Package metrics exposes the Prometheus gauges and counters surfaced
// at the process's /metrics endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LocalHashrate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dodmine",
		Name:      "local_hashrate",
		Help:      "Estimated local hashrate in H/s, averaged over the current round.",
	})

	RoundsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dodmine",
		Name:      "rounds_started_total",
		Help:      "Total mining rounds started by the orchestrator.",
	})

	RoundsWon = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dodmine",
		Name:      "rounds_won_total",
		Help:      "Total mining rounds that produced a winning result before their deadline.",
	})

	RoundsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dodmine",
		Name:      "rounds_expired_total",
		Help:      "Total mining rounds that ran out of time with no winner.",
	})

	SubmissionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dodmine",
		Name:      "submissions_accepted_total",
		Help:      "Total commit/reveal pairs accepted by the coordinator.",
	})

	SubmissionsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dodmine",
		Name:      "submissions_rejected_total",
		Help:      "Total commit/reveal pairs rejected or failed to submit.",
	})

	CoordinatorErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dodmine",
		Name:      "coordinator_errors_total",
		Help:      "Coordinator RPC failures by call.",
	}, []string{"call"})

	FleetPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dodmine",
		Name:      "fleet_peers",
		Help:      "Number of sibling miner processes currently joined to the fleet gossip mesh.",
	})

	ActiveThreads = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dodmine",
		Name:      "active_threads",
		Help:      "Number of worker threads currently busy on the in-flight round.",
	})

	UptimeSeconds = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "dodmine",
		Name:      "uptime_seconds",
		Help:      "Process uptime in seconds.",
	}, func() float64 { return time.Since(processStart).Seconds() })

	processStart = time.Now()
)

func init() {
	prometheus.MustRegister(
		LocalHashrate,
		RoundsStarted,
		RoundsWon,
		RoundsExpired,
		SubmissionsAccepted,
		SubmissionsRejected,
		CoordinatorErrors,
		FleetPeers,
		ActiveThreads,
		UptimeSeconds,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
