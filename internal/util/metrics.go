package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sales_completed_total",
		Help: "Total number of committed sales",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkout_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_checkout_latency_seconds",
		Help:    "Latency of checkout processing",
		Buckets: prometheus.DefBuckets,
	})

	CartRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_cart_rejections_total",
		Help: "Total number of rejected or clamped cart mutations",
	}, []string{"reason"})

	HeldOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_held_orders_total",
		Help: "Total number of held-order operations",
	}, []string{"action"})

	StockDepletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_stock_depleted_total",
		Help: "Total number of inventory records sold out by a checkout",
	})

	CatalogInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_catalog_invalidations_total",
		Help: "Total number of catalog cache invalidations",
	})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_events_consumed_total",
		Help: "Total number of consumed sale events",
	}, []string{"type"})

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
