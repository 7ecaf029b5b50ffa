package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaygate_quote_requests_total",
		Help: "The total number of quote requests proxied to the relayer",
	}, []string{"key", "base_mint"})

	RelayerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaygate_relayer_errors_total",
		Help: "Non-200 responses observed from the relayer",
	}, []string{"path", "status"})

	FillRatio = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relaygate_fill_ratio",
		Help:    "Ratio of matched amount to requested amount",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	}, []string{"key", "side"})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaygate_settlements_total",
		Help: "Match bundles tracked to their settlement outcome",
	}, []string{"key", "settled", "endpoint"})

	SponsoredMatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaygate_sponsored_matches_total",
		Help: "Match bundles rewritten with a gas sponsorship refund",
	}, []string{"key", "refund_native_eth"})

	RateLimitRejectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaygate_rate_limit_rejects_total",
		Help: "Requests rejected by the token bucket rate limiter",
	}, []string{"key", "kind"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relaygate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
