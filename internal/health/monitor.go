// Package health aggregates the named liveness checks the supplemented
// spec calls for: EventQueue depth, live-mode clock skew, and VenueAdapter
// connectivity. A Monitor only stores closures and runs them on each call; it
// has no opinion on what "healthy" means for a given component.
package health

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"tradecore/internal/telemetry"
)

// Status is one check's latest outcome.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Check reports nil when the component is healthy.
type Check func() error

// Monitor aggregates named Checks and can run them on a cron schedule.
type Monitor struct {
	logger telemetry.Logger
	mu     sync.RWMutex
	checks map[string]Check

	cronMu sync.Mutex
	cronJob *cron.Cron
}

// NewMonitor creates an empty Monitor.
func NewMonitor(logger telemetry.Logger) *Monitor {
	if logger == nil {
		logger = telemetry.NopLogger{}
	}
	return &Monitor{
		logger: logger.WithField("component", "health_monitor"),
		checks: make(map[string]Check),
	}
}

// Register adds or replaces the check for component.
func (m *Monitor) Register(component string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[component] = check
}

// Snapshot runs every registered check and returns its current status.
func (m *Monitor) Snapshot() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.checks))
	for component, check := range m.checks {
		if err := check(); err != nil {
			out[component] = StatusUnhealthy
			m.logger.WithField("component_name", component).Warn("health check failed: " + err.Error())
		} else {
			out[component] = StatusHealthy
		}
	}
	return out
}

// IsHealthy reports whether every registered check currently passes.
func (m *Monitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, check := range m.checks {
		if err := check(); err != nil {
			return false
		}
	}
	return true
}

// StartPeriodic runs Snapshot on spec (a cron or "@every" expression) and
// hands the result to onTick until Stop is called. Intended for a live-mode
// engine process to surface health alongside its NDJSON event stream.
func (m *Monitor) StartPeriodic(spec string, onTick func(map[string]Status)) error {
	m.cronMu.Lock()
	defer m.cronMu.Unlock()

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { onTick(m.Snapshot()) }); err != nil {
		return fmt.Errorf("health: bad schedule %q: %w", spec, err)
	}
	m.cronJob = c
	c.Start()
	return nil
}

// Stop halts the periodic schedule, if one was started.
func (m *Monitor) Stop() {
	m.cronMu.Lock()
	defer m.cronMu.Unlock()
	if m.cronJob != nil {
		m.cronJob.Stop()
		m.cronJob = nil
	}
}
