// Package monitoring exposes prometheus metrics and an in-process activity
// snapshot for the café services.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the service metrics and their registry. A nil *Collector is
// valid and records nothing.
type Collector struct {
	registry *prometheus.Registry
	monitor  *Monitor

	stockMovements     *prometheus.CounterVec
	stockLevel         *prometheus.GaugeVec
	orders             *prometheus.CounterVec
	bookingTransitions *prometheus.CounterVec
	notifications      *prometheus.CounterVec
}

// NewCollector creates a collector on a private registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		monitor:  NewMonitor(),
		stockMovements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cafe_stock_movements_total",
				Help: "Ledger entries appended, by transaction type",
			},
			[]string{"type"},
		),
		stockLevel: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cafe_stock_level",
				Help: "Current stock per ingredient after the last movement",
			},
			[]string{"ingredient"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cafe_orders_total",
				Help: "Order operations by outcome",
			},
			[]string{"outcome"},
		),
		bookingTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cafe_booking_transitions_total",
				Help: "Booking status transitions by target status",
			},
			[]string{"to"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cafe_notifications_total",
				Help: "Notification deliveries by sink and result",
			},
			[]string{"sink", "result"},
		),
	}

	registry.MustRegister(
		c.stockMovements,
		c.stockLevel,
		c.orders,
		c.bookingTransitions,
		c.notifications,
		collectors.NewGoCollector(),
	)

	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Monitor returns the activity snapshot fed by this collector.
func (c *Collector) Monitor() *Monitor {
	if c == nil {
		return nil
	}
	return c.monitor
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) StockMovement(txType, ingredient string, newStock float64) {
	if c == nil {
		return
	}
	c.stockMovements.WithLabelValues(txType).Inc()
	c.stockLevel.WithLabelValues(ingredient).Set(newStock)
	c.monitor.RecordEvent("stock_" + txType)
}

func (c *Collector) OrderOutcome(outcome string) {
	if c == nil {
		return
	}
	c.orders.WithLabelValues(outcome).Inc()
	c.monitor.RecordEvent("order_" + outcome)
}

func (c *Collector) BookingTransition(to string) {
	if c == nil {
		return
	}
	c.bookingTransitions.WithLabelValues(to).Inc()
	c.monitor.RecordEvent("booking_" + to)
}

func (c *Collector) NotificationDelivery(sink, result string) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(sink, result).Inc()
}
