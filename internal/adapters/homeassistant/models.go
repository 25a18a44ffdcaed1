package homeassistant

import (
	"encoding/json"
	"time"
)

// EntityState represents a Home Assistant entity state
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
	Context     Context                `json:"context"`
}

// FriendlyName returns the friendly_name attribute, or "" when unset
func (s *EntityState) FriendlyName() string {
	return stringAttr(s.Attributes, "friendly_name")
}

// Icon returns the icon attribute, or "" when unset
func (s *EntityState) Icon() string {
	return stringAttr(s.Attributes, "icon")
}

// DeviceClass returns the device_class attribute, or "" when unset
func (s *EntityState) DeviceClass() string {
	return stringAttr(s.Attributes, "device_class")
}

func stringAttr(attrs map[string]interface{}, key string) string {
	if attrs == nil {
		return ""
	}
	v, _ := attrs[key].(string)
	return v
}

// Context represents the context of an entity state change
type Context struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id"`
	UserID   *string `json:"user_id"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Error   *WSError        `json:"error,omitempty"`
	Version string          `json:"ha_version,omitempty"`
	Message string          `json:"message,omitempty"`
}

// WSError represents a WebSocket error
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event represents a Home Assistant bus event
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	TimeFired time.Time       `json:"time_fired"`
}

// StateChangedEventData represents data for state_changed events
type StateChangedEventData struct {
	EntityID string       `json:"entity_id"`
	OldState *EntityState `json:"old_state"`
	NewState *EntityState `json:"new_state"`
}

// CompressedEvent is the payload of a subscribe_entities event.
// Additions seed the baseline, changes carry deltas, removals drop tracking.
type CompressedEvent struct {
	Additions map[string]CompressedState  `json:"a,omitempty"`
	Changes   map[string]CompressedChange `json:"c,omitempty"`
	Removals  []string                    `json:"r,omitempty"`
}

// CompressedState is a compact full state: s is the state string, a the attributes
type CompressedState struct {
	State      *string                `json:"s,omitempty"`
	Attributes map[string]interface{} `json:"a,omitempty"`
}

// CompressedChange is a delta: Plus holds new values, Minus removed attribute names
type CompressedChange struct {
	Plus  *CompressedState `json:"+,omitempty"`
	Minus *CompressedMinus `json:"-,omitempty"`
}

// CompressedMinus lists attributes removed from an entity
type CompressedMinus struct {
	Attributes []string `json:"a,omitempty"`
}

// AuthMessage represents the WebSocket authentication message
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

// SubscribeEventsMessage represents event subscription message
type SubscribeEventsMessage struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	EventType string `json:"event_type,omitempty"`
}

// SubscribeEntitiesMessage subscribes to compressed updates for a fixed set of entities
type SubscribeEntitiesMessage struct {
	ID        int      `json:"id"`
	Type      string   `json:"type"`
	EntityIDs []string `json:"entity_ids"`
}

// Transition is one observed change of an entity, from either subscription mode.
// Attribute maps are never nil.
type Transition struct {
	EntityID      string
	OldState      *string
	NewState      *string
	OldAttributes map[string]interface{}
	NewAttributes map[string]interface{}
}

// Message types used on the websocket API
const (
	MsgTypeAuthRequired      = "auth_required"
	MsgTypeAuth              = "auth"
	MsgTypeAuthOK            = "auth_ok"
	MsgTypeAuthInvalid       = "auth_invalid"
	MsgTypeResult            = "result"
	MsgTypeEvent             = "event"
	MsgTypeSubscribeEvents   = "subscribe_events"
	MsgTypeSubscribeEntities = "subscribe_entities"

	EventTypeStateChanged = "state_changed"
)
