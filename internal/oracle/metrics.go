package oracle

import "github.com/prometheus/client_golang/prometheus"

var (
	oracleRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oracle_request_duration_seconds",
		Help:    "Latency of oracle API requests",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
	oracleErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_request_errors_total",
		Help: "Total failed oracle API requests",
	})
	oracleRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_request_retries_total",
		Help: "Total oracle API request retries",
	})
)

func init() {
	prometheus.MustRegister(oracleRequestDuration, oracleErrors, oracleRetries)
}
