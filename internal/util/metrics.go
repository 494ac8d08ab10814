package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_sessions_started_total",
		Help: "Total number of storefront sessions started",
	})

	SessionsEndedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_sessions_ended_total",
		Help: "Total number of storefront sessions ended",
	}, []string{"reason"})

	SignInsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_sign_ins_total",
		Help: "Sign-in attempts by outcome",
	}, []string{"outcome"})

	CartAdditionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_additions_total",
		Help: "Products added to carts",
	}, []string{"product"})

	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders stored",
	}, []string{"payment"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of order confirmations that did not store an order",
	}, []string{"reason"})

	OrderStoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_store_latency_seconds",
		Help:    "Latency of order store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	ScreenshotUploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "screenshot_upload_bytes",
		Help:    "Size of stored payment screenshots",
		Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
	})

	EventsPublishFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_events_publish_failed_total",
		Help: "Order events that could not be published",
	})

	ProductUnitsSoldTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_product_units_total",
		Help: "Units sold per product, from order events",
	}, []string{"product"})

	RevenueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_revenue_total",
		Help: "Order value summed over order events",
	})

	SalesOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_orders_total",
		Help: "Orders seen by the sales worker",
	}, []string{"payment"})

	SessionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_sessions_expired_total",
		Help: "Idle sessions removed by the sweeper",
	})

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
