package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	VerificationCodesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verification_codes_issued_total",
			Help: "Verification codes generated by login requests",
		},
	)

	VerificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_attempts_total",
			Help: "Code verification attempts by outcome",
		},
		[]string{"result"},
	)

	ReferralActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_activations_total",
			Help: "Referral code activation attempts by outcome",
		},
		[]string{"result"},
	)

	ExpiredCodesCleared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verification_codes_expired_total",
			Help: "Verification codes cleared by the cleanup job",
		},
	)
)
