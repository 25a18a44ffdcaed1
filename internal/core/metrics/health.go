package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/frostdev-ops/pma-watch-bridge/pkg/version"
)

// Health states, worst last
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Timestamp  time.Time               `json:"timestamp"`
	Duration   time.Duration           `json:"duration"`
	Components map[string]HealthStatus `json:"components"`
}

// CheckFunc checks one component
type CheckFunc func(ctx context.Context) HealthStatus

// HealthChecker runs registered component checks
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]CheckFunc)}
}

// Register adds or replaces a named check
func (h *HealthChecker) Register(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Check runs every check; the report takes the worst component status
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	start := time.Now()

	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	report := HealthReport{
		Status:     StatusHealthy,
		Version:    version.GetVersion(),
		Timestamp:  start,
		Components: make(map[string]HealthStatus, len(names)),
	}

	for _, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()

		checkStart := time.Now()
		status := check(ctx)
		status.Duration = time.Since(checkStart)
		if status.Timestamp.IsZero() {
			status.Timestamp = checkStart
		}
		report.Components[name] = status

		if severity(status.Status) > severity(report.Status) {
			report.Status = status.Status
		}
	}

	report.Duration = time.Since(start)
	return report
}

func severity(status string) int {
	switch status {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}
