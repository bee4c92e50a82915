package metrics

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketsMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tixgate_tickets_minted_total",
			Help: "Total signed tickets minted",
		},
	)

	ticketValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tixgate_ticket_validations_total",
			Help: "Ticket validations by format and result reason",
		},
		[]string{"format", "reason"},
	)

	checkIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tixgate_checkins_total",
			Help: "Check-in attempts by outcome",
		},
		[]string{"outcome"},
	)

	checkInDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tixgate_checkin_duration_seconds",
			Help:    "Duration of check-ins including the conditional write and confirmation",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tixgate_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tixgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	dbConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tixgate_db_connections",
			Help: "Database pool connections by state",
		},
		[]string{"state"},
	)
)

// ValidOutcome is the reason label recorded for a valid ticket.
const ValidOutcome = "valid"

func TicketMinted() {
	ticketsMinted.Inc()
}

// ObserveValidation records a validation result. An empty reason means valid.
func ObserveValidation(format, reason string) {
	if reason == "" {
		reason = ValidOutcome
	}
	if format == "" {
		format = "unknown"
	}
	ticketValidations.WithLabelValues(format, reason).Inc()
}

func ObserveCheckIn(outcome string, d time.Duration) {
	checkIns.WithLabelValues(outcome).Inc()
	checkInDuration.Observe(d.Seconds())
}

// ObserveHTTPRequest records a request. route must be the route template,
// never the raw path, to keep label cardinality bounded.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// CollectPoolStats samples stats every interval until ctx is done.
func CollectPoolStats(ctx context.Context, stats func() sql.DBStats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		recordPoolStats(stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func recordPoolStats(s sql.DBStats) {
	dbConnections.WithLabelValues("open").Set(float64(s.OpenConnections))
	dbConnections.WithLabelValues("in_use").Set(float64(s.InUse))
	dbConnections.WithLabelValues("idle").Set(float64(s.Idle))
}
