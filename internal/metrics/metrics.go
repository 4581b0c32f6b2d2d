package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burdenmint_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burdenmint_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burdenmint_generations_total",
			Help: "Image generations by mode (free, paid) and result.",
		},
		[]string{"mode", "result"},
	)

	QuotaRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burdenmint_quota_rejections_total",
			Help: "Free generations rejected because the daily cap was reached.",
		},
	)

	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burdenmint_upstream_duration_seconds",
			Help:    "Latency of remote image generation calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"operation"},
	)

	InvoicesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burdenmint_invoices_created_total",
			Help: "Payment invoices created, by provider.",
		},
		[]string{"provider"},
	)

	CertificatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burdenmint_certificates_total",
			Help: "Certificate jobs by outcome (delivered, failed).",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GenerationsTotal,
		QuotaRejectionsTotal,
		UpstreamDuration,
		InvoicesCreatedTotal,
		CertificatesTotal,
	)
}
