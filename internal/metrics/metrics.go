package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails delivered successfully",
		},
	)

	EmailsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_failed_total",
			Help: "Total emails that exhausted their retry budget",
		},
	)

	EmailsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_skipped_total",
			Help: "Total emails skipped because the recipient opted out",
		},
	)

	EmailsRetried = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_retried_total",
			Help: "Total emails requeued after a delivery failure",
		},
	)

	StaleRequeued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_stale_requeued_total",
			Help: "Total emails recovered from an expired sending lease",
		},
	)

	SendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "email_send_duration_seconds",
			Help:    "Time spent in one delivery provider call",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchItems = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "email_batch_items",
			Help:    "Queue items claimed per batch invocation",
			Buckets: []float64{0, 1, 2, 5, 10},
		},
	)
)

func Init() {
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(EmailsFailed)
	prometheus.MustRegister(EmailsSkipped)
	prometheus.MustRegister(EmailsRetried)
	prometheus.MustRegister(StaleRequeued)
	prometheus.MustRegister(SendDuration)
	prometheus.MustRegister(BatchItems)
}
