package models

import "strings"

// Rule types understood by the notification engine
const (
	RuleTypeAny         = "any"
	RuleTypeStateChange = "state_change"
	RuleTypeThreshold   = "threshold"
)

// AnyState is the wildcard accepted in from_state/to_state
const AnyState = "any"

// WatchRule is a stored request to be notified about an entity.
// Optional columns are nil when absent in the database.
type WatchRule struct {
	ID        int64   `json:"id"`
	UserID    string  `json:"user_id"`
	ChannelID string  `json:"channel_id"`
	EntityID  string  `json:"entity_id"`
	RuleType  string  `json:"rule_type"`
	FromState *string `json:"from_state,omitempty"`
	ToState   *string `json:"to_state,omitempty"`
	Operator  *string `json:"operator,omitempty"`
	Threshold *string `json:"threshold,omitempty"`
	Message   *string `json:"message,omitempty"`
}

// EffectiveRuleType treats a missing rule type as "any"
func (w *WatchRule) EffectiveRuleType() string {
	if strings.TrimSpace(w.RuleType) == "" {
		return RuleTypeAny
	}
	return w.RuleType
}

// EntityDetail is the cached descriptive metadata of an entity
type EntityDetail struct {
	FriendlyName *string `json:"friendly_name,omitempty"`
	Icon         *string `json:"icon,omitempty"`
	State        *string `json:"state,omitempty"`
	DeviceClass  *string `json:"device_class,omitempty"`
}

// IsEmpty reports whether nothing is known about the entity
func (d EntityDetail) IsEmpty() bool {
	return d.FriendlyName == nil && d.Icon == nil && d.State == nil && d.DeviceClass == nil
}

// DisplayName returns the friendly name, or the entity id when there is none
func (d EntityDetail) DisplayName(entityID string) string {
	if d.FriendlyName != nil && *d.FriendlyName != "" {
		return *d.FriendlyName
	}
	return entityID
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// StringValue dereferences s, returning "" for nil
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
