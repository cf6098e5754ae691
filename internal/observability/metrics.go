package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mycelia",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mycelia",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	listenerConns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mycelia",
			Subsystem: "listener",
			Name:      "connections_total",
			Help:      "Listener connections by outcome (accepted, rejected).",
		},
		[]string{"listener", "outcome"},
	)
	listenerActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mycelia",
			Subsystem: "listener",
			Name:      "connections_active",
			Help:      "Connections currently being served.",
		},
		[]string{"listener"},
	)
	listenerFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mycelia",
			Subsystem: "listener",
			Name:      "frames_total",
			Help:      "Frames (or raw chunks) handed to the processor.",
		},
		[]string{"listener", "mode"},
	)
	listenerBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mycelia",
			Subsystem: "listener",
			Name:      "received_bytes_total",
			Help:      "Bytes handed to the processor.",
		},
		[]string{"listener"},
	)
	listenerResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mycelia",
			Subsystem: "listener",
			Name:      "responses_total",
			Help:      "Processor responses written back to the peer.",
		},
		[]string{"listener"},
	)
	listenerConnErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mycelia",
			Subsystem: "listener",
			Name:      "connection_errors_total",
			Help:      "Connections dropped on read/write error.",
		},
		[]string{"listener", "stage"},
	)
	processorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mycelia",
			Subsystem: "listener",
			Name:      "processor_duration_seconds",
			Help:      "Processor call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"listener"},
	)
	transportSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mycelia",
			Subsystem: "transport",
			Name:      "frames_sent_total",
			Help:      "Client frame sends by object type and result.",
		},
		[]string{"obj_type", "success"},
	)
	transportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mycelia",
			Subsystem: "transport",
			Name:      "send_duration_seconds",
			Help:      "Dial+write duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"obj_type", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			listenerConns,
			listenerActive,
			listenerFrames,
			listenerBytes,
			listenerResponses,
			listenerConnErrors,
			processorDuration,
			transportSends,
			transportDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordConnAccepted(listener string) {
	RegisterMetrics()
	listenerConns.WithLabelValues(listener, "accepted").Inc()
	listenerActive.WithLabelValues(listener).Inc()
}

func RecordConnClosed(listener string) {
	RegisterMetrics()
	listenerActive.WithLabelValues(listener).Dec()
}

func RecordConnRejected(listener string) {
	RegisterMetrics()
	listenerConns.WithLabelValues(listener, "rejected").Inc()
}

func RecordConnError(listener, stage string) {
	RegisterMetrics()
	listenerConnErrors.WithLabelValues(listener, stage).Inc()
}

func RecordFrame(listener, mode string, size int, duration time.Duration, responded bool) {
	RegisterMetrics()
	listenerFrames.WithLabelValues(listener, mode).Inc()
	listenerBytes.WithLabelValues(listener).Add(float64(size))
	processorDuration.WithLabelValues(listener).Observe(duration.Seconds())
	if responded {
		listenerResponses.WithLabelValues(listener).Inc()
	}
}

func RecordSend(objType string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	transportSends.WithLabelValues(objType, successLabel).Inc()
	transportDuration.WithLabelValues(objType, successLabel).Observe(duration.Seconds())
}
