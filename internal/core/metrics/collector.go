package metrics

import (
	"time"
)

// MetricsCollector defines the interface for collecting bridge metrics
type MetricsCollector interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
	SetSessionState(state string)
	IncSubscription(mode string)
	IncTransition(mode string)
	IncReconnect()
	IncNotification(kind string)
	IncDeliveryFailure()
	IncEvaluationError()
}

// MetricsConfig contains configuration for metrics collection
type MetricsConfig struct {
	Enabled bool
	Prefix  string
}
