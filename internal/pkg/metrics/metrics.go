package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polysession_orders_total",
		Help: "Orders submitted to the exchange",
	}, []string{"status", "side", "type"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polysession_request_duration_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	RelaySubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polysession_relay_submissions_total",
		Help: "Relay transactions by final outcome",
	}, []string{"outcome"})

	RelayPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polysession_relay_polls_total",
		Help: "Relay state polls by observed state",
	}, []string{"state"})

	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polysession_session_transitions_total",
		Help: "Trading session step transitions",
	}, []string{"step", "outcome"})

	RiskRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polysession_risk_rejects_total",
		Help: "Orders rejected by pre-trade checks",
	}, []string{"reason"})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polysession_upstream_errors_total",
		Help: "Failed calls to external services",
	}, []string{"upstream", "operation"})
)
