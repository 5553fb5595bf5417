package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LogsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_logs_ingested_total",
			Help: "Total number of log events ingested",
		},
		[]string{"level"},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"severity"},
	)

	ScorerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_scorer_requests_total",
			Help: "Total number of remote scorer calls by outcome",
		},
		[]string{"outcome"},
	)

	BroadcastsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_broadcasts_total",
			Help: "Total number of events broadcast to subscribers",
		},
		[]string{"type"},
	)

	SubscribersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bastion_subscribers_connected",
			Help: "Number of currently connected websocket subscribers",
		},
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bastion_detection_duration_seconds",
			Help:    "Time taken to run one detection pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	DetectionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_detection_failures_total",
			Help: "Total number of detection-side failures by stage",
		},
		[]string{"stage"},
	)
)
