// Package observability holds the Prometheus collectors for tile downloads.
package observability

import (
	"errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_downloads_total",
			Help: "Manifest entries produced, by status (created, reused, failed).",
		},
		[]string{"status"},
	)

	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_download_attempts_total",
			Help: "Upstream download attempts by outcome.",
		},
		[]string{"outcome"},
	)

	bytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tile_download_bytes_total",
			Help: "Bytes written to final tile files.",
		},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"upstream"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 16),
		},
		[]string{"method", "route", "status"},
	)

	indexOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manifest_index_operations_total",
			Help: "Manifest index operations by op and result.",
		},
		[]string{"op", "result"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manifest_events_total",
			Help: "Manifest events by outcome (enqueued, dropped, failed).",
		},
		[]string{"outcome"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tiles_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

var (
	regMu      sync.Mutex
	registered = map[prometheus.Registerer]bool{}
)

// Init registers the collectors on reg (the default registerer when nil).
// Collectors keep counting when Init is never called; they are just not exported.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled {
		return
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	regMu.Lock()
	defer regMu.Unlock()
	if registered[reg] {
		return
	}
	for _, c := range []prometheus.Collector{
		downloadsTotal, attemptsTotal, bytesTotal, upstreamLatencySeconds,
		httpRequestsTotal, httpRequestDurationSeconds, indexOpsTotal, eventsTotal,
		buildInfo,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
	registered[reg] = true
}

// StatusFailed labels a coverage that produced no manifest entry.
const StatusFailed = "failed"

func IncDownload(status string) {
	downloadsTotal.WithLabelValues(status).Inc()
}

func IncAttempt(outcome string) {
	attemptsTotal.WithLabelValues(outcome).Inc()
}

func AddBytes(n int64) {
	if n > 0 {
		bytesTotal.Add(float64(n))
	}
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveIndexOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	indexOpsTotal.WithLabelValues(op, result).Inc()
}

func IncEvent(outcome string) {
	eventsTotal.WithLabelValues(outcome).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
