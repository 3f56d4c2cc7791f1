package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	}, []string{"source"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrdersRestoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_restored_total",
		Help: "Total number of cancelled orders restored to pending",
	})

	StockReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	StockRestoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_restore_failures_total",
		Help: "Total number of stock restore lines that could not be applied",
	})

	StockReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reserve_latency_seconds",
		Help:    "Latency of stock reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	LockAcquiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_locks_acquired_total",
		Help: "Total number of product edit locks acquired",
	})

	LockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_lock_conflicts_total",
		Help: "Total number of rejected product lock acquisitions",
	})

	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadline_sweep_runs_total",
		Help: "Total number of payment deadline sweep runs",
	})

	SweepCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadline_sweep_cancelled_total",
		Help: "Total number of orders cancelled by the deadline sweep",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deadline_sweep_duration_seconds",
		Help:    "Duration of payment deadline sweep runs",
		Buckets: prometheus.DefBuckets,
	})

	CalendarSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_sync_total",
		Help: "Total number of calendar sync attempts",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
