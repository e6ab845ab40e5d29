package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rentledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	SnapshotWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentledger",
			Subsystem: "store",
			Name:      "snapshot_writes_total",
			Help:      "Snapshot writes by result",
		},
		[]string{"result"},
	)

	SnapshotBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rentledger",
			Subsystem: "store",
			Name:      "snapshot_bytes",
			Help:      "Size of the last written snapshot",
		},
	)

	Records = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rentledger",
			Subsystem: "store",
			Name:      "records",
			Help:      "Number of records per collection",
		},
		[]string{"collection"},
	)

	PaymentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rentledger",
			Subsystem: "ledger",
			Name:      "payments_created_total",
			Help:      "Total number of payments submitted",
		},
	)

	BlobDeleteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rentledger",
			Subsystem: "media",
			Name:      "blob_delete_failures_total",
			Help:      "Best effort blob deletions that failed",
		},
	)

	WorkerProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_processed_total",
			Help: "Total number of jobs processed by workers",
		},
		[]string{"pool", "result"},
	)

	WorkerActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_active_goroutines",
			Help: "Number of active worker goroutines per pool",
		},
		[]string{"pool"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current RabbitMQ queue depth",
		},
		[]string{"queue"},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
	prometheus.MustRegister(SnapshotWrites)
	prometheus.MustRegister(SnapshotBytes)
	prometheus.MustRegister(Records)
	prometheus.MustRegister(PaymentsCreated)
	prometheus.MustRegister(BlobDeleteFailures)
	prometheus.MustRegister(WorkerProcessed)
	prometheus.MustRegister(WorkerActive)
	prometheus.MustRegister(QueueDepth)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
