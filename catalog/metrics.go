package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_api_requests_total",
			Help: "Total number of catalog API requests",
		},
		[]string{"endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_api_request_duration_seconds",
			Help:    "Catalog API request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	RateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_rate_limit_waits_total",
			Help: "Number of times an outbound request had to wait for the rate limiter",
		},
	)

	RateLimitDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the outbound rate limiter",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_requests_total",
			Help: "Product cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_token_refreshes_total",
			Help: "Token exchanges against the authorization endpoint",
		},
		[]string{"status"},
	)
)
