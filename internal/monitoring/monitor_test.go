package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_GetMetrics(t *testing.T) {
	m := NewMonitor()
	m.RecordMetric("test_metric", 42)

	metrics := m.GetMetrics()

	value, exists := metrics["test_metric"]
	require.True(t, exists)
	assert.Equal(t, 42, value)

	_, exists = metrics["uptime_seconds"]
	assert.True(t, exists)
}

func TestMonitor_RecordEvent(t *testing.T) {
	m := NewMonitor()

	m.RecordEvent("order_accepted")
	m.RecordEvent("order_accepted")

	value, exists := m.GetMetric("order_accepted_count")
	require.True(t, exists)
	assert.Equal(t, 2, value)

	_, exists = m.GetMetric("order_accepted_last_at")
	assert.True(t, exists)
}

func TestMonitor_Reset(t *testing.T) {
	m := NewMonitor()
	m.RecordMetric("test_metric", 42)

	m.Reset()

	metrics := m.GetMetrics()
	_, exists := metrics["test_metric"]
	assert.False(t, exists)
	_, exists = metrics["uptime_seconds"]
	assert.True(t, exists)
}

func TestCollector(t *testing.T) {
	c := NewCollector()

	c.StockMovement("export", "Milk", 4)
	c.StockMovement("export", "Milk", 2)
	c.OrderOutcome("rejected")
	c.BookingTransition("confirmed")
	c.NotificationDelivery("store", "ok")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.stockMovements.WithLabelValues("export")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.stockLevel.WithLabelValues("Milk")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.orders.WithLabelValues("rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.bookingTransitions.WithLabelValues("confirmed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.notifications.WithLabelValues("store", "ok")))

	count, _ := c.Monitor().GetMetric("stock_export_count")
	assert.Equal(t, 2, count)

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cafe_stock_movements_total")
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.StockMovement("import", "Milk", 1)
		c.OrderOutcome("accepted")
		c.BookingTransition("cancelled")
		c.NotificationDelivery("hub", "error")
	})
	assert.Nil(t, c.Monitor())
}
