// Package metrics holds the platform's Prometheus counters. Every service
// mounts promhttp on /metrics; counters are registered through promauto at
// package load.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LoginAttempts counts credential checks by outcome (ok, denied, disabled).
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canteen_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	// RateLimitDenials counts 429s issued by the login rate limiter.
	RateLimitDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canteen_rate_limit_denials_total",
		Help: "Login requests denied by the sliding-window rate limiter.",
	})

	// StaleVersionRetries counts optimistic-lock conflicts that triggered a retry.
	StaleVersionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canteen_stock_stale_version_retries_total",
		Help: "Stock deductions retried after losing the version race.",
	})

	// Deductions counts deduction outcomes (ok, insufficient, conflict, not_found).
	Deductions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canteen_stock_deductions_total",
		Help: "Stock deduction attempts by outcome.",
	}, []string{"outcome"})

	// IdempotentReplays counts responses served from the idempotency cache.
	IdempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canteen_idempotent_replays_total",
		Help: "Requests answered verbatim from the idempotency cache.",
	})

	// OrderTransitions counts persisted state-machine transitions by status.
	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canteen_order_transitions_total",
		Help: "Order status transitions persisted by the kitchen.",
	}, []string{"status"})

	// StreamsOpened counts notification streams accepted.
	StreamsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canteen_notification_streams_opened_total",
		Help: "Notification SSE streams accepted.",
	})
)

// Handler returns the gin handler serving the Prometheus exposition.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
