// Package metrics exposes Prometheus collectors for the supervision core:
// probe outcomes and latency, derived status, and process lifecycle counts.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "probe",
			Name:      "total",
			Help:      "Number of health probes by outcome (online/offline).",
		}, []string{"server", "outcome"},
	)
	probeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "warden",
			Subsystem: "probe",
			Name:      "latency_seconds",
			Help:      "Probe round-trip latency for reachable servers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"server"},
	)
	serverStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "server",
			Name:      "status",
			Help:      "Current derived status per server (1 = active status).",
		}, []string{"server", "status"},
	)
	onlinePlayers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "server",
			Name:      "online_players",
			Help:      "Player count from the last reachable probe.",
		}, []string{"server"},
	)
	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful process spawns.",
		}, []string{"server"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of observed process exits.",
		}, []string{"server"},
	)
)

var allStatuses = []string{"Offline", "Starting", "Online", "Stopping", "Unattached"}

// Register registers all collectors with r. Safe to call multiple times;
// AlreadyRegisteredError is tolerated so the default registry can be
// shared with embedders.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{probes, probeLatency, serverStatus, onlinePlayers, processStarts, processStops}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer; the caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func ObserveProbe(server string, reachable bool, latencySeconds float64) {
	if !regOK.Load() {
		return
	}
	outcome := "offline"
	if reachable {
		outcome = "online"
		probeLatency.WithLabelValues(server).Observe(latencySeconds)
	}
	probes.WithLabelValues(server, outcome).Inc()
}

func SetStatus(server, status string) {
	if !regOK.Load() {
		return
	}
	for _, s := range allStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		serverStatus.WithLabelValues(server, s).Set(v)
	}
}

func SetOnlinePlayers(server string, n int) {
	if regOK.Load() {
		onlinePlayers.WithLabelValues(server).Set(float64(n))
	}
}

func IncProcessStart(server string) {
	if regOK.Load() {
		processStarts.WithLabelValues(server).Inc()
	}
}

func IncProcessStop(server string) {
	if regOK.Load() {
		processStops.WithLabelValues(server).Inc()
	}
}

// Reset removes label series for a deleted server.
func Reset(server string) {
	if !regOK.Load() {
		return
	}
	probes.DeletePartialMatch(prometheus.Labels{"server": server})
	probeLatency.DeletePartialMatch(prometheus.Labels{"server": server})
	serverStatus.DeletePartialMatch(prometheus.Labels{"server": server})
	onlinePlayers.DeletePartialMatch(prometheus.Labels{"server": server})
}
