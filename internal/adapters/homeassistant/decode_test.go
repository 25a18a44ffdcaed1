package homeassistant

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func stateObject(state string, attrs map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"entity_id":  "light.kitchen",
		"state":      state,
		"attributes": attrs,
	}
}

func TestDecodeStateChanged(t *testing.T) {
	tests := []struct {
		name      string
		event     map[string]interface{}
		wantCount int
		wantOld   string
		wantNew   string
	}{
		{
			name: "state flip",
			event: map[string]interface{}{
				"event_type": "state_changed",
				"data": map[string]interface{}{
					"entity_id": "light.kitchen",
					"old_state": stateObject("off", nil),
					"new_state": stateObject("on", nil),
				},
			},
			wantCount: 1,
			wantOld:   "off",
			wantNew:   "on",
		},
		{
			name: "attribute-only change",
			event: map[string]interface{}{
				"event_type": "state_changed",
				"data": map[string]interface{}{
					"entity_id": "light.kitchen",
					"old_state": stateObject("on", map[string]interface{}{"brightness": 100}),
					"new_state": stateObject("on", map[string]interface{}{"brightness": 120}),
				},
			},
			wantCount: 1,
			wantOld:   "on",
			wantNew:   "on",
		},
		{
			name: "nothing changed",
			event: map[string]interface{}{
				"event_type": "state_changed",
				"data": map[string]interface{}{
					"entity_id": "light.kitchen",
					"old_state": stateObject("on", map[string]interface{}{"brightness": 100}),
					"new_state": stateObject("on", map[string]interface{}{"brightness": 100}),
				},
			},
		},
		{
			name: "entity created",
			event: map[string]interface{}{
				"event_type": "state_changed",
				"data": map[string]interface{}{
					"entity_id": "light.kitchen",
					"old_state": nil,
					"new_state": stateObject("on", nil),
				},
			},
		},
		{
			name: "entity removed",
			event: map[string]interface{}{
				"event_type": "state_changed",
				"data": map[string]interface{}{
					"entity_id": "light.kitchen",
					"old_state": stateObject("on", nil),
					"new_state": nil,
				},
			},
		},
		{
			name:  "other event type",
			event: map[string]interface{}{"event_type": "call_service", "data": map[string]interface{}{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transitions, err := decodeStateChanged(rawJSON(t, tt.event))
			require.NoError(t, err)
			require.Len(t, transitions, tt.wantCount)
			if tt.wantCount == 0 {
				return
			}
			tr := transitions[0]
			assert.Equal(t, "light.kitchen", tr.EntityID)
			assert.Equal(t, tt.wantOld, *tr.OldState)
			assert.Equal(t, tt.wantNew, *tr.NewState)
			assert.NotNil(t, tr.OldAttributes)
			assert.NotNil(t, tr.NewAttributes)
		})
	}
}

func TestDecodeStateChanged_Malformed(t *testing.T) {
	_, err := decodeStateChanged(json.RawMessage(`{"event_type":"state_changed","data":"nope"}`))
	assert.Error(t, err)

	_, err = decodeStateChanged(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestEntityTracker_AdditionsOnlySeed(t *testing.T) {
	tracker := newEntityTracker()

	transitions, err := tracker.apply(rawJSON(t, map[string]interface{}{
		"a": map[string]interface{}{
			"light.kitchen": map[string]interface{}{"s": "on", "a": map[string]interface{}{"brightness": 100}},
		},
	}))
	require.NoError(t, err)
	assert.Empty(t, transitions)

	require.Contains(t, tracker.entities, "light.kitchen")
	assert.Equal(t, "on", *tracker.entities["light.kitchen"].state)
}

func TestEntityTracker_StateChange(t *testing.T) {
	tracker := newEntityTracker()
	_, err := tracker.apply(rawJSON(t, map[string]interface{}{
		"a": map[string]interface{}{
			"binary_sensor.door": map[string]interface{}{"s": "off", "a": map[string]interface{}{"device_class": "door"}},
		},
	}))
	require.NoError(t, err)

	transitions, err := tracker.apply(rawJSON(t, map[string]interface{}{
		"c": map[string]interface{}{
			"binary_sensor.door": map[string]interface{}{"+": map[string]interface{}{"s": "on"}},
		},
	}))
	require.NoError(t, err)
	require.Len(t, transitions, 1)

	tr := transitions[0]
	assert.Equal(t, "off", *tr.OldState)
	assert.Equal(t, "on", *tr.NewState)
	assert.Equal(t, "door", tr.NewAttributes["device_class"])

	// same state again is not a transition
	transitions, err = tracker.apply(rawJSON(t, map[string]interface{}{
		"c": map[string]interface{}{
			"binary_sensor.door": map[string]interface{}{"+": map[string]interface{}{"s": "on"}},
		},
	}))
	require.NoError(t, err)
	assert.Empty(t, transitions)
}

func TestEntityTracker_AttributeOnlyChange(t *testing.T) {
	tracker := newEntityTracker()
	_, err := tracker.apply(rawJSON(t, map[string]interface{}{
		"a": map[string]interface{}{
			"light.kitchen": map[string]interface{}{
				"s": "on",
				"a": map[string]interface{}{"brightness": 100, "color_mode": "brightness"},
			},
		},
	}))
	require.NoError(t, err)

	transitions, err := tracker.apply(rawJSON(t, map[string]interface{}{
		"c": map[string]interface{}{
			"light.kitchen": map[string]interface{}{
				"+": map[string]interface{}{"a": map[string]interface{}{"brightness": 120}},
				"-": map[string]interface{}{"a": []string{"color_mode"}},
			},
		},
	}))
	require.NoError(t, err)
	require.Len(t, transitions, 1)

	tr := transitions[0]
	assert.Equal(t, "on", *tr.OldState)
	assert.Equal(t, "on", *tr.NewState)
	assert.Equal(t, float64(100), tr.OldAttributes["brightness"])
	assert.Equal(t, float64(120), tr.NewAttributes["brightness"])
	assert.Contains(t, tr.OldAttributes, "color_mode")
	assert.NotContains(t, tr.NewAttributes, "color_mode")

	b := tracker.entities["light.kitchen"]
	assert.Equal(t, float64(120), b.attrs["brightness"], "baseline merges new attributes")
	assert.NotContains(t, b.attrs, "color_mode")
}

func TestEntityTracker_UnknownBaseline(t *testing.T) {
	tracker := newEntityTracker()

	transitions, err := tracker.apply(rawJSON(t, map[string]interface{}{
		"c": map[string]interface{}{
			"switch.kettle": map[string]interface{}{"+": map[string]interface{}{"s": "on"}},
		},
	}))
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Nil(t, transitions[0].OldState)
	assert.Equal(t, "on", *transitions[0].NewState)
	assert.NotNil(t, transitions[0].OldAttributes)
}

func TestEntityTracker_RemovalsAndOrdering(t *testing.T) {
	tracker := newEntityTracker()
	_, err := tracker.apply(rawJSON(t, map[string]interface{}{
		"a": map[string]interface{}{
			"switch.b": map[string]interface{}{"s": "off"},
			"switch.a": map[string]interface{}{"s": "off"},
		},
	}))
	require.NoError(t, err)

	transitions, err := tracker.apply(rawJSON(t, map[string]interface{}{
		"c": map[string]interface{}{
			"switch.b": map[string]interface{}{"+": map[string]interface{}{"s": "on"}},
			"switch.a": map[string]interface{}{"+": map[string]interface{}{"s": "on"}},
		},
		"r": []string{"switch.b"},
	}))
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, "switch.a", transitions[0].EntityID)
	assert.Equal(t, "switch.b", transitions[1].EntityID)

	assert.Contains(t, tracker.entities, "switch.a")
	assert.NotContains(t, tracker.entities, "switch.b")
}

func TestEntityTracker_Malformed(t *testing.T) {
	tracker := newEntityTracker()
	_, err := tracker.apply(json.RawMessage(`{"c":"oops"}`))
	assert.Error(t, err)
}
