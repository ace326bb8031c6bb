package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metric name constants, namespaced under tradecore_ to avoid collisions
// with other exporters sharing a Prometheus registry.
const (
	MetricOrdersPlacedTotal    = "tradecore_orders_placed_total"
	MetricOrdersFilledTotal    = "tradecore_orders_filled_total"
	MetricOrdersRejectedTotal  = "tradecore_orders_rejected_total"
	MetricFillsTotal           = "tradecore_fills_total"
	MetricQueueDepth           = "tradecore_event_queue_depth"
	MetricQueueOverflowTotal   = "tradecore_event_queue_overflow_total"
	MetricRiskRejectionsTotal  = "tradecore_risk_rejections_total"
	MetricCircuitBreakerOpen  = "tradecore_circuit_breaker_open"
	MetricDispatchLatencySecs = "tradecore_dispatch_latency_seconds"
	MetricBacktestProgress     = "tradecore_backtest_progress"
	MetricStaleFillsTotal      = "tradecore_stale_fills_total"
)

// Metrics holds every instrument the engine records to. All fields are safe
// for concurrent use (OTel instruments are).
type Metrics struct {
	OrdersPlaced    metric.Int64Counter
	OrdersFilled    metric.Int64Counter
	OrdersRejected  metric.Int64Counter
	Fills           metric.Int64Counter
	QueueDepth      metric.Int64ObservableGauge
	QueueOverflow   metric.Int64Counter
	RiskRejections  metric.Int64Counter
	DispatchLatency metric.Float64Histogram
	StaleFills      metric.Int64Counter

	mu             sync.RWMutex
	queueDepthVal  int64
	cbOpenGauge    metric.Int64ObservableGauge
	cbOpen         map[string]int64
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
)

// GetGlobalMetrics returns the process-wide metrics holder, creating it on
// first use. Before Init is called instruments are bound to the no-op
// meter, so callers (including tests that never wire telemetry.Setup) can
// record to them unconditionally.
func GetGlobalMetrics() *Metrics {
	initOnce.Do(func() {
		globalMetrics = &Metrics{cbOpen: make(map[string]int64)}
		_ = globalMetrics.Init(noop.Meter{})
	})
	return globalMetrics
}

// Init binds every instrument against the given meter. Each call rebinds
// every instrument, replacing the ones bound before; Setup uses this to move
// the global holder from the no-op meter onto the real one.
func (m *Metrics) Init(meter metric.Meter) error {
	var err error
	if m.OrdersPlaced, err = meter.Int64Counter(MetricOrdersPlacedTotal); err != nil {
		return err
	}
	if m.OrdersFilled, err = meter.Int64Counter(MetricOrdersFilledTotal); err != nil {
		return err
	}
	if m.OrdersRejected, err = meter.Int64Counter(MetricOrdersRejectedTotal); err != nil {
		return err
	}
	if m.Fills, err = meter.Int64Counter(MetricFillsTotal); err != nil {
		return err
	}
	if m.QueueOverflow, err = meter.Int64Counter(MetricQueueOverflowTotal); err != nil {
		return err
	}
	if m.RiskRejections, err = meter.Int64Counter(MetricRiskRejectionsTotal); err != nil {
		return err
	}
	if m.DispatchLatency, err = meter.Float64Histogram(MetricDispatchLatencySecs); err != nil {
		return err
	}
	if m.StaleFills, err = meter.Int64Counter(MetricStaleFillsTotal); err != nil {
		return err
	}
	m.QueueDepth, err = meter.Int64ObservableGauge(MetricQueueDepth,
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.queueDepthVal)
			return nil
		}),
	)
	if err != nil {
		return err
	}
	m.cbOpenGauge, err = meter.Int64ObservableGauge(MetricCircuitBreakerOpen,
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for name, v := range m.cbOpen {
				obs.Observe(v, metric.WithAttributes(attribute.String("breaker", name)))
			}
			return nil
		}),
	)
	return err
}

// SetCircuitBreakerOpen records whether the named circuit breaker is
// currently tripped, surfaced through the observable gauge callback.
func (m *Metrics) SetCircuitBreakerOpen(name string, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if open {
		m.cbOpen[name] = 1
	} else {
		m.cbOpen[name] = 0
	}
}

// SetQueueDepth records the current EventQueue length for the observable
// gauge callback.
func (m *Metrics) SetQueueDepth(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepthVal = int64(n)
}
