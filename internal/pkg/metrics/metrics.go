// Package metrics holds the gateway's Prometheus instruments. They are
// registered on a private registry exposed by the diagnostics server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry backs the /metrics endpoint.
var Registry = prometheus.NewRegistry()

var (
	// OTAState mirrors the orchestrator's state machine as a number so
	// dashboards can graph transitions. See ota.StateCode for values.
	OTAState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vmg_ota_state",
			Help: "Current OTA orchestrator state (0=idle ... 7=completed, 8=failed).",
		},
	)

	// CampaignsTotal counts finished campaigns by outcome.
	CampaignsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmg_ota_campaigns_total",
			Help: "Total number of OTA campaigns processed.",
		},
		[]string{"result", "type"}, // result: completed/failed, type: vehicle/self
	)

	// DownloadDuration tracks package download time.
	DownloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vmg_ota_download_duration_seconds",
			Help:    "Time spent downloading campaign packages.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	// DoIPRequestsTotal counts diagnostic requests by service and outcome.
	DoIPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmg_doip_requests_total",
			Help: "Total number of DoIP diagnostic requests sent downstream.",
		},
		[]string{"service", "status"}, // status: success/failed
	)

	// HeartbeatsTotal counts heartbeats published to the backend.
	HeartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vmg_heartbeats_total",
			Help: "Total number of heartbeat messages published.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		OTAState,
		CampaignsTotal,
		DownloadDuration,
		DoIPRequestsTotal,
		HeartbeatsTotal,
	)
}
