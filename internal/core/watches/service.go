package watches

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/frostdev-ops/pma-watch-bridge/internal/core/entities"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database/models"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database/repositories"
	"github.com/sirupsen/logrus"
)

// Service errors
var (
	ErrMissingEntity     = errors.New("an entity to watch is required")
	ErrInvalidCondition  = errors.New("invalid watch condition")
	ErrEntityUnavailable = errors.New("entity could not be read from Home Assistant")
	ErrNonNumericState   = errors.New("entity state is not numeric")
	ErrStateMismatch     = errors.New("current state matches neither side of the condition")
	ErrAlreadyWatching   = errors.New("already watching this entity with this condition in this channel")
	ErrWatchNotFound     = errors.New("no watch found")
)

// EntityLookup reads entity metadata; Refresh always asks Home Assistant
type EntityLookup interface {
	Get(ctx context.Context, entityID string) models.EntityDetail
	Refresh(ctx context.Context, entityID string) (models.EntityDetail, error)
}

// EntityResolver maps user input to entity ids
type EntityResolver interface {
	Resolve(ctx context.Context, query string) (string, error)
	Search(ctx context.Context, query string) ([]entities.Candidate, error)
}

// AddRequest is a request to start watching an entity from a channel
type AddRequest struct {
	UserID    string
	ChannelID string
	Entity    string
	Condition string
	Message   string
}

// WatchView is a stored rule decorated for listings
type WatchView struct {
	*models.WatchRule
	FriendlyName string `json:"friendly_name,omitempty"`
	Description  string `json:"description"`
}

// Service implements the watch management commands
type Service struct {
	repo     repositories.WatchRepository
	details  EntityLookup
	resolver EntityResolver
	logger   *logrus.Logger
}

// NewService creates a new watch management service
func NewService(repo repositories.WatchRepository, details EntityLookup, resolver EntityResolver, logger *logrus.Logger) *Service {
	return &Service{
		repo:     repo,
		details:  details,
		resolver: resolver,
		logger:   logger,
	}
}

// Add resolves the entity, validates the condition against its current state
// and stores the rule. Resolution errors from the resolver are returned as is.
func (s *Service) Add(ctx context.Context, req AddRequest) (*models.WatchRule, error) {
	if strings.TrimSpace(req.Entity) == "" {
		return nil, ErrMissingEntity
	}

	entityID, err := s.resolver.Resolve(ctx, req.Entity)
	if err != nil {
		return nil, err
	}

	cond, err := ParseCondition(req.Condition)
	if err != nil {
		return nil, err
	}

	detail, err := s.details.Refresh(ctx, entityID)
	if err != nil || (detail.FriendlyName == nil && detail.State == nil) {
		if err == nil {
			err = errors.New("no name or state returned")
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrEntityUnavailable, entityID, err)
	}

	if err := validate(cond, models.StringValue(detail.State)); err != nil {
		return nil, err
	}

	rule := &models.WatchRule{
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
		EntityID:  entityID,
		RuleType:  cond.RuleType,
		FromState: cond.FromState,
		ToState:   cond.ToState,
		Operator:  cond.Operator,
		Threshold: cond.Threshold,
	}
	if msg := strings.TrimSpace(req.Message); msg != "" {
		rule.Message = models.StringPtr(req.Message)
	}

	exists, err := s.repo.Exists(ctx, queryFor(rule))
	if err != nil {
		return nil, fmt.Errorf("failed to check existing watches: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyWatching, entityID)
	}

	id, err := s.repo.Add(ctx, rule)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateWatch) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyWatching, entityID)
		}
		return nil, fmt.Errorf("failed to add watch: %w", err)
	}
	rule.ID = id

	s.logger.WithFields(logrus.Fields{
		"watch_id":   id,
		"user_id":    rule.UserID,
		"channel_id": rule.ChannelID,
		"entity_id":  entityID,
		"rule_type":  rule.RuleType,
	}).Info("Started watching entity")

	return rule, nil
}

// validate rejects conditions that cannot match the entity as it is now
func validate(cond Condition, currentState string) error {
	switch cond.RuleType {
	case models.RuleTypeThreshold:
		if _, err := strconv.ParseFloat(strings.TrimSpace(currentState), 64); err != nil {
			return fmt.Errorf("%w: current state is %q", ErrNonNumericState, currentState)
		}
	case models.RuleTypeStateChange:
		from := models.StringValue(cond.FromState)
		to := models.StringValue(cond.ToState)
		if from != models.AnyState && from != currentState && to != models.AnyState && to != currentState {
			return fmt.Errorf("%w: current state is %q, condition is %s -> %s", ErrStateMismatch, currentState, from, to)
		}
	}
	return nil
}

// Remove deletes a watch by id
func (s *Service) Remove(ctx context.Context, id int64) error {
	removed, err := s.repo.Remove(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to remove watch %d: %w", id, err)
	}
	if !removed {
		return fmt.Errorf("%w with id %d", ErrWatchNotFound, id)
	}

	s.logger.WithField("watch_id", id).Info("Stopped watching")
	return nil
}

// List returns the watches of a channel with descriptions and friendly names
func (s *Service) List(ctx context.Context, channelID string) ([]WatchView, error) {
	rules, err := s.repo.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watches: %w", err)
	}

	views := make([]WatchView, 0, len(rules))
	for _, rule := range rules {
		detail := s.details.Get(ctx, rule.EntityID)
		views = append(views, WatchView{
			WatchRule:    rule,
			FriendlyName: models.StringValue(detail.FriendlyName),
			Description:  Describe(rule),
		})
	}
	return views, nil
}

// Search finds entities by friendly name
func (s *Service) Search(ctx context.Context, query string) ([]entities.Candidate, error) {
	return s.resolver.Search(ctx, query)
}

func queryFor(rule *models.WatchRule) repositories.WatchQuery {
	return repositories.WatchQuery{
		ChannelID: rule.ChannelID,
		EntityID:  rule.EntityID,
		FromState: rule.FromState,
		ToState:   rule.ToState,
		Operator:  rule.Operator,
		Threshold: rule.Threshold,
	}
}

// HelpText documents the watch commands and message placeholders
const HelpText = `Home Assistant watch bridge usage:
  POST   /api/v1/watches {"entity", "condition", "message", "channel_id"}  start watching an entity
  DELETE /api/v1/watches/{id}                                              stop watching a watch id
  GET    /api/v1/channels/{channel_id}/watches                             list watches in a channel
  GET    /api/v1/entities/search?q=<text>                                  search entity names
  GET    /api/v1/help                                                      show this help

Conditions:
  on -> off   watch for a specific state change ("any" works on either side)
  >= 37       watch for a numeric threshold (>=, <=, >, <)
  any         watch for any state change (default)

Message template placeholders:
  {old_state}, {new_state}, {display_name}, {entity_id}, {timestamp}
  Example: The {display_name} changed from {old_state} to {new_state} at {timestamp}
`
