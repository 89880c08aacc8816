package monitoring

import (
	"sync"
	"time"
)

// Monitor keeps an in-process snapshot of service activity for /health.
type Monitor struct {
	metrics      map[string]interface{}
	metricsMutex sync.RWMutex
	startTime    time.Time
}

// NewMonitor creates a new monitoring instance
func NewMonitor() *Monitor {
	return &Monitor{
		metrics:   make(map[string]interface{}),
		startTime: time.Now(),
	}
}

// RecordMetric records a metric value
func (m *Monitor) RecordMetric(name string, value interface{}) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics[name] = value
}

// GetMetric returns a specific metric value
func (m *Monitor) GetMetric(name string) (interface{}, bool) {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()
	value, exists := m.metrics[name]
	return value, exists
}

// GetMetrics returns a copy of all current values plus uptime.
func (m *Monitor) GetMetrics() map[string]interface{} {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()

	metrics := make(map[string]interface{}, len(m.metrics)+1)
	for k, v := range m.metrics {
		metrics[k] = v
	}
	metrics["uptime_seconds"] = time.Since(m.startTime).Seconds()

	return metrics
}

// Reset clears all metrics
func (m *Monitor) Reset() {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics = make(map[string]interface{})
}

// RecordEvent bumps the "<event>_count" counter and stamps "<event>_last_at".
func (m *Monitor) RecordEvent(event string) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()

	countKey := event + "_count"
	count, _ := m.metrics[countKey].(int)
	m.metrics[countKey] = count + 1
	m.metrics[event+"_last_at"] = time.Now().Format(time.RFC3339)
}
