package homeassistant

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner is one connection attempt that returns when the connection ends
type Runner interface {
	Run(ctx context.Context) error
}

// Backoff bounds the delay between reconnect attempts
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// ReconnectMetrics counts session restarts
type ReconnectMetrics interface {
	IncReconnect()
}

// Supervisor restarts a Runner with exponential backoff until its context ends.
// A run that stayed up longer than Backoff.Max resets the delay.
type Supervisor struct {
	runner  Runner
	backoff Backoff
	metrics ReconnectMetrics
	logger  *logrus.Logger

	sleep func(ctx context.Context, d time.Duration) bool
}

// NewSupervisor creates a reconnect supervisor
func NewSupervisor(runner Runner, backoff Backoff, metrics ReconnectMetrics, logger *logrus.Logger) *Supervisor {
	if backoff.Min <= 0 {
		backoff.Min = time.Second
	}
	if backoff.Max < backoff.Min {
		backoff.Max = backoff.Min
	}
	return &Supervisor{
		runner:  runner,
		backoff: backoff,
		metrics: metrics,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Run blocks until ctx is cancelled
func (s *Supervisor) Run(ctx context.Context) {
	delay := s.backoff.Min

	for attempt := 1; ; attempt++ {
		started := time.Now()
		err := s.runner.Run(ctx)
		if ctx.Err() != nil {
			s.logger.Info("Home Assistant session stopped")
			return
		}

		if time.Since(started) > s.backoff.Max {
			delay = s.backoff.Min
		}

		wait := delay
		if IsAuthError(err) {
			wait = s.backoff.Max
		}

		entry := s.logger.WithFields(logrus.Fields{
			"attempt":  attempt,
			"retry_in": wait.String(),
		})
		switch {
		case err == nil:
			entry.Warn("Home Assistant session closed")
		case IsAuthError(err):
			entry.WithError(err).Error("Home Assistant rejected the access token")
		case errors.Is(err, ErrSubscriptionRejected):
			entry.WithError(err).Error("Home Assistant rejected the event subscription")
		case IsConnectionError(err):
			entry.WithError(err).Warn("Home Assistant connection lost")
		default:
			entry.WithError(err).Warn("Home Assistant session ended")
		}

		if s.metrics != nil {
			s.metrics.IncReconnect()
		}

		if !s.sleep(ctx, wait) {
			s.logger.Info("Home Assistant session stopped")
			return
		}

		delay *= 2
		if delay > s.backoff.Max {
			delay = s.backoff.Max
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
