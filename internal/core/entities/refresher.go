package entities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// WatchedEntities lists the entities that currently have watchers
type WatchedEntities interface {
	DistinctEntityIDs(ctx context.Context) ([]string, error)
}

// Refresher periodically re-reads every watched entity into the DetailCache
// so renamed entities and changed icons show up without a restart.
type Refresher struct {
	cron     *cron.Cron
	schedule string
	cache    *DetailCache
	watched  WatchedEntities
	timeout  time.Duration
	logger   *logrus.Logger

	mu      sync.Mutex
	running bool
}

// NewRefresher creates a refresher; an empty schedule disables it
func NewRefresher(schedule string, detailCache *DetailCache, watched WatchedEntities, logger *logrus.Logger) *Refresher {
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	return &Refresher{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			),
		),
		schedule: schedule,
		cache:    detailCache,
		watched:  watched,
		timeout:  5 * time.Minute,
		logger:   logger,
	}
}

// Start registers the refresh job and starts the scheduler
func (r *Refresher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if r.schedule == "" {
		r.logger.Info("Entity cache refresh disabled")
		return nil
	}

	if _, err := r.cron.AddFunc(r.schedule, r.runOnce); err != nil {
		return fmt.Errorf("invalid cache refresh schedule %q: %w", r.schedule, err)
	}

	r.cron.Start()
	r.running = true

	r.logger.WithField("schedule", r.schedule).Info("Entity cache refresher started")
	return nil
}

// Stop stops the scheduler and waits for a running refresh to finish
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	ctx := r.cron.Stop()
	<-ctx.Done()
	r.running = false
	r.logger.Info("Entity cache refresher stopped")
}

func (r *Refresher) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.RefreshAll(ctx); err != nil {
		r.logger.WithError(err).Warn("Entity cache refresh failed")
	}
}

// RefreshAll re-reads every watched entity and returns how many were updated.
// Individual failures are logged and skipped.
func (r *Refresher) RefreshAll(ctx context.Context) (int, error) {
	entityIDs, err := r.watched.DistinctEntityIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list watched entities: %w", err)
	}

	refreshed := 0
	for _, entityID := range entityIDs {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, err := r.cache.Refresh(ctx, entityID); err != nil {
			r.logger.WithError(err).WithField("entity_id", entityID).Debug("Skipping entity refresh")
			continue
		}
		refreshed++
	}

	r.logger.WithFields(logrus.Fields{
		"refreshed": refreshed,
		"watched":   len(entityIDs),
	}).Info("Entity cache refreshed")

	return refreshed, nil
}
