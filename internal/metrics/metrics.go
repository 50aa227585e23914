// Registers:
//
//	#orderflow_snapshot_applied_total
//	#orderflow_snapshot_rejected_total
//	#orderflow_feed_* connection gauges
//	#go_* and process_* system metrics
//
// Exposes them on the configured address using the Prometheus HTTP handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderflow/internal/stats"
)

var (
	once             sync.Once
	snapshotApplied  *prometheus.CounterVec
	snapshotRejected *prometheus.CounterVec

	feedMessages   prometheus.Gauge
	feedErrors     prometheus.Gauge
	feedReconnects prometheus.Gauge
	feedBytesIn    prometheus.Gauge
	feedBytesOut   prometheus.Gauge
	feedLatency    prometheus.Gauge
	feedUptime     prometheus.Gauge
)

// Init registers the collectors and serves /metrics on addr. Safe to call
// more than once; only the first call takes effect.
func Init(addr string) {
	once.Do(func() {
		snapshotApplied = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_snapshot_applied_total",
				Help: "Number of order book snapshots applied to the store",
			},
			[]string{"symbol"},
		)

		snapshotRejected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_snapshot_rejected_total",
				Help: "Number of snapshots rejected during normalization",
			},
			[]string{"symbol"},
		)

		feedMessages = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_feed_messages",
			Help: "Inbound streaming messages received",
		})
		feedErrors = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_feed_errors",
			Help: "Connection and protocol errors observed",
		})
		feedReconnects = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_feed_reconnects",
			Help: "Reconnect attempts scheduled",
		})
		feedBytesIn = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_feed_bytes_received",
			Help: "Bytes received on the streaming connection",
		})
		feedBytesOut = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_feed_bytes_sent",
			Help: "Bytes sent on the streaming connection",
		})
		feedLatency = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_feed_heartbeat_latency_seconds",
			Help: "Average heartbeat round-trip over the rolling window",
		})
		feedUptime = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_feed_uptime_seconds",
			Help: "Accumulated open-connection time",
		})

		_ = prometheus.Register(snapshotApplied)
		_ = prometheus.Register(snapshotRejected)
		_ = prometheus.Register(feedMessages)
		_ = prometheus.Register(feedErrors)
		_ = prometheus.Register(feedReconnects)
		_ = prometheus.Register(feedBytesIn)
		_ = prometheus.Register(feedBytesOut)
		_ = prometheus.Register(feedLatency)
		_ = prometheus.Register(feedUptime)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		if addr == "" {
			addr = "0.0.0.0:2112"
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// IncrementApplied increases the applied-snapshot counter for a symbol.
func IncrementApplied(symbol string) {
	if snapshotApplied != nil {
		snapshotApplied.WithLabelValues(symbol).Inc()
	}
}

// IncrementRejected increases the rejected-snapshot counter for a symbol.
func IncrementRejected(symbol string) {
	if snapshotRejected != nil {
		snapshotRejected.WithLabelValues(symbol).Inc()
	}
}

// ObserveStats mirrors a telemetry snapshot into the exported gauges.
func ObserveStats(snap stats.Snapshot) {
	if feedMessages == nil {
		return
	}
	feedMessages.Set(float64(snap.TotalMessages))
	feedErrors.Set(float64(snap.TotalErrors))
	feedReconnects.Set(float64(snap.TotalReconnects))
	feedBytesIn.Set(float64(snap.BytesReceived))
	feedBytesOut.Set(float64(snap.BytesSent))
	feedLatency.Set(snap.AverageLatency.Seconds())
	feedUptime.Set(snap.ConnectionUptime.Seconds())
}
