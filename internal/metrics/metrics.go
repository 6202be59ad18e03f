package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boxoffice_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_checkouts_total",
			Help: "Checkout attempts by outcome",
		},
		[]string{"outcome"},
	)

	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_orders_created_total",
			Help: "PENDING orders committed by event",
		},
		[]string{"event"},
	)

	checkIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_checkins_total",
			Help: "Door scans by resulting status",
		},
		[]string{"event", "status"},
	)

	webhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_webhooks_total",
			Help: "Inbound webhooks by source and result",
		},
		[]string{"source", "result"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "boxoffice_upstream_breaker_state",
			Help: "Upstream breaker state per host (0 closed, 1 half-open, 2 open)",
		},
		[]string{"host"},
	)
)

func ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func Checkout(outcome string) {
	checkouts.WithLabelValues(outcome).Inc()
}

func OrderCreated(event string) {
	ordersCreated.WithLabelValues(event).Inc()
}

func CheckIn(event, status string) {
	checkIns.WithLabelValues(event, status).Inc()
}

func Webhook(source, result string) {
	webhooks.WithLabelValues(source, result).Inc()
}

// BreakerStateChanged matches upstream.Config.OnStateChange.
func BreakerStateChanged(host string, _, to gobreaker.State) {
	breakerState.WithLabelValues(host).Set(float64(to))
}
