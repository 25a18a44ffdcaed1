package homeassistant

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// decodeStateChanged turns a firehose state_changed event into at most one transition.
// Creations and removals (a missing old or new state) are not transitions.
func decodeStateChanged(raw json.RawMessage) ([]Transition, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	if event.EventType != EventTypeStateChanged {
		return nil, nil
	}

	var data StateChangedEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, fmt.Errorf("invalid state_changed data: %w", err)
	}
	if data.EntityID == "" || data.OldState == nil || data.NewState == nil {
		return nil, nil
	}

	oldAttrs := orEmpty(data.OldState.Attributes)
	newAttrs := orEmpty(data.NewState.Attributes)

	if data.OldState.State == data.NewState.State && reflect.DeepEqual(oldAttrs, newAttrs) {
		return nil, nil
	}

	oldState, newState := data.OldState.State, data.NewState.State
	return []Transition{{
		EntityID:      data.EntityID,
		OldState:      &oldState,
		NewState:      &newState,
		OldAttributes: oldAttrs,
		NewAttributes: newAttrs,
	}}, nil
}

type baseline struct {
	state *string
	attrs map[string]interface{}
}

// entityTracker keeps the last known state of each entity of a filtered
// subscription, since compressed changes only carry deltas.
type entityTracker struct {
	entities map[string]*baseline
}

func newEntityTracker() *entityTracker {
	return &entityTracker{entities: make(map[string]*baseline)}
}

// apply folds one compressed event into the baselines and returns the
// transitions it produced, ordered by entity id.
func (t *entityTracker) apply(raw json.RawMessage) ([]Transition, error) {
	var event CompressedEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("invalid compressed event: %w", err)
	}

	for entityID, added := range event.Additions {
		b := t.entities[entityID]
		if b == nil {
			b = &baseline{attrs: map[string]interface{}{}}
			t.entities[entityID] = b
		}
		if added.State != nil {
			state := *added.State
			b.state = &state
		}
		if added.Attributes != nil {
			b.attrs = copyAttrs(added.Attributes)
		}
	}

	changed := make([]string, 0, len(event.Changes))
	for entityID := range event.Changes {
		changed = append(changed, entityID)
	}
	sort.Strings(changed)

	var transitions []Transition
	for _, entityID := range changed {
		if tr, ok := t.change(entityID, event.Changes[entityID]); ok {
			transitions = append(transitions, tr)
		}
	}

	for _, entityID := range event.Removals {
		delete(t.entities, entityID)
	}

	return transitions, nil
}

func (t *entityTracker) change(entityID string, ch CompressedChange) (Transition, bool) {
	b := t.entities[entityID]
	if b == nil {
		b = &baseline{attrs: map[string]interface{}{}}
		t.entities[entityID] = b
	}

	oldAttrs := copyAttrs(b.attrs)
	newAttrs := copyAttrs(b.attrs)
	var plusState *string
	hasAttrChange := false

	if ch.Plus != nil {
		plusState = ch.Plus.State
		for k, v := range ch.Plus.Attributes {
			newAttrs[k] = v
			hasAttrChange = true
		}
	}
	if ch.Minus != nil {
		for _, k := range ch.Minus.Attributes {
			delete(newAttrs, k)
		}
	}

	oldState := b.state
	newState := oldState

	emit := false
	switch {
	case plusState != nil && (oldState == nil || *oldState != *plusState):
		state := *plusState
		newState = &state
		emit = true
	case hasAttrChange:
		// attribute-only change, old and new share the baseline state
		emit = true
	}

	b.state = newState
	b.attrs = newAttrs

	if !emit {
		return Transition{}, false
	}

	return Transition{
		EntityID:      entityID,
		OldState:      clonePtr(oldState),
		NewState:      clonePtr(newState),
		OldAttributes: oldAttrs,
		NewAttributes: copyAttrs(newAttrs),
	}, true
}

func orEmpty(attrs map[string]interface{}) map[string]interface{} {
	if attrs == nil {
		return map[string]interface{}{}
	}
	return attrs
}

func copyAttrs(attrs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
