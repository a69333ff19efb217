package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuel_orders_created_total",
		Help: "The total number of orders placed",
	})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_order_status_transitions_total",
		Help: "Order status transitions by target status and outcome",
	}, []string{"status", "outcome"})

	PaymentsConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_cod_payment_confirmations_total",
		Help: "Cash-on-delivery confirmations by outcome",
	}, []string{"outcome"})

	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_notification_failures_total",
		Help: "Events that could not be handed to the relay",
	}, []string{"event"})

	NotificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_notifications_dropped_total",
		Help: "Events dropped by a sink, e.g. because a websocket client was too slow",
	}, []string{"sink"})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fuel_websocket_clients",
		Help: "The number of currently connected websocket clients",
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fuel_http_request_duration_seconds",
		Help:    "Time spent serving HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "code"})
)

// Middleware records request latency labelled by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
