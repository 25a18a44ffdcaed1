package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/frostdev-ops/pma-watch-bridge/internal/adapters/homeassistant"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/entities"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database/models"
	"github.com/sirupsen/logrus"
)

// Notification is one rendered message for a chat channel
type Notification struct {
	ChannelID   string
	Message     string
	DisplayName string
	IconURL     string
}

// Sender delivers a notification; one attempt per call
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// WatchLister returns every rule watching an entity
type WatchLister interface {
	ListByEntity(ctx context.Context, entityID string) ([]*models.WatchRule, error)
}

// DetailLookup returns display metadata, degrading to an empty detail
type DetailLookup interface {
	Get(ctx context.Context, entityID string) models.EntityDetail
}

// IconLocator turns an icon reference into a public image URL, or ""
type IconLocator interface {
	URL(ctx context.Context, icon string) string
}

// Metrics receives engine observations
type Metrics interface {
	IncNotification(kind string)
	IncDeliveryFailure()
	IncEvaluationError()
}

type noopMetrics struct{}

func (noopMetrics) IncNotification(string) {}
func (noopMetrics) IncDeliveryFailure()    {}
func (noopMetrics) IncEvaluationError()    {}

// BrightnessConfig gates notifications for light brightness changes.
// MinPercent wins when greater than zero, otherwise MinDeltaSteps applies.
type BrightnessConfig struct {
	Enabled       bool
	MinPercent    float64
	MinDeltaSteps float64
}

// Options configures an Engine
type Options struct {
	Brightness BrightnessConfig
	Icons      IconLocator
	Metrics    Metrics
	Clock      func() time.Time
}

// Engine matches transitions against watch rules and sends the resulting notifications
type Engine struct {
	watches    WatchLister
	details    DetailLookup
	sender     Sender
	icons      IconLocator
	metrics    Metrics
	brightness BrightnessConfig
	now        func() time.Time
	logger     *logrus.Logger
}

// NewEngine creates a new notification engine
func NewEngine(watches WatchLister, details DetailLookup, sender Sender, opts Options, logger *logrus.Logger) *Engine {
	e := &Engine{
		watches:    watches,
		details:    details,
		sender:     sender,
		icons:      opts.Icons,
		metrics:    opts.Metrics,
		brightness: opts.Brightness,
		now:        opts.Clock,
		logger:     logger,
	}
	if e.metrics == nil {
		e.metrics = noopMetrics{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Handle evaluates every watcher of the transition's entity and notifies the
// ones that match. It never fails: problems with one watcher are logged and the
// next watcher is still evaluated.
func (e *Engine) Handle(ctx context.Context, t homeassistant.Transition) {
	log := e.logger.WithField("entity_id", t.EntityID)

	watchers, err := e.watches.ListByEntity(ctx, t.EntityID)
	if err != nil {
		log.WithError(err).Error("Failed to load watchers")
		return
	}
	if len(watchers) == 0 {
		return
	}

	detail := e.details.Get(ctx, t.EntityID)
	deviceClass := models.StringValue(detail.DeviceClass)

	view := renderView{
		entityID:    t.EntityID,
		displayName: detail.DisplayName(t.EntityID),
		oldState:    entities.ReadableState(deviceClass, stateText(t.OldState)),
		newState:    entities.ReadableState(deviceClass, stateText(t.NewState)),
		timestamp:   e.now().Local().Format(TimestampLayout),
	}

	iconURL := ""
	if e.icons != nil && detail.Icon != nil {
		iconURL = e.icons.URL(ctx, *detail.Icon)
	}

	log.WithFields(logrus.Fields{
		"old_state":    models.StringValue(t.OldState),
		"new_state":    models.StringValue(t.NewState),
		"watchers":     len(watchers),
		"display_name": view.displayName,
	}).Debug("Evaluating watchers")

	for _, rule := range watchers {
		e.notifyWatcher(ctx, rule, t, view, iconURL)
	}
}

func (e *Engine) notifyWatcher(ctx context.Context, rule *models.WatchRule, t homeassistant.Transition, view renderView, iconURL string) {
	log := e.logger.WithFields(logrus.Fields{
		"entity_id":  t.EntityID,
		"watch_id":   rule.ID,
		"channel_id": rule.ChannelID,
	})

	defer func() {
		if r := recover(); r != nil {
			e.metrics.IncEvaluationError()
			log.WithField("panic", fmt.Sprint(r)).Error("Watcher evaluation panicked")
		}
	}()

	result := e.evaluate(rule, t, log)
	if result.kind == matchNone {
		log.WithField("rule_type", rule.EffectiveRuleType()).Debug("Skipped notify: rule not matched")
		return
	}

	message := render(rule.Message, result, view)
	notification := Notification{
		ChannelID:   rule.ChannelID,
		Message:     message,
		DisplayName: view.displayName,
		IconURL:     iconURL,
	}

	if err := e.sender.Send(ctx, notification); err != nil {
		e.metrics.IncDeliveryFailure()
		log.WithError(err).Warn("Failed to deliver notification")
		return
	}

	e.metrics.IncNotification(result.kind.String())
	log.WithField("kind", result.kind.String()).Info("Notified watcher")
}

func stateText(state *string) string {
	if state == nil {
		return UnknownState
	}
	return *state
}
