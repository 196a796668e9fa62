package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Domain metrics
	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transit_verifications_total",
		Help: "Pass verifications, partitioned by outcome and denial reason.",
	}, []string{"result", "reason"})

	TripsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transit_trips_recorded_total",
		Help: "Trips recorded against subscriptions.",
	})

	ClientsRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transit_clients_registered_total",
		Help: "Clients registered.",
	})

	SubscriptionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transit_subscriptions_created_total",
		Help: "Subscriptions opened, partitioned by plan.",
	}, []string{"plan"})

	SubscriptionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transit_subscriptions_expired_total",
		Help: "Subscriptions moved to expired by the expiry sweep.",
	})

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transit_http_requests_total",
		Help: "HTTP requests, partitioned by route, method and status code.",
	}, []string{"route", "method", "code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transit_http_request_duration_seconds",
		Help:    "HTTP request latency, partitioned by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// ObserveVerification counts one verification outcome. Authorized scans use reason "none".
func ObserveVerification(valid bool, reason string) {
	result := "denied"
	if valid {
		result = "authorized"
		reason = "none"
	}
	VerificationsTotal.WithLabelValues(result, reason).Inc()
}
