package homeassistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRESTClient(t *testing.T, handler http.HandlerFunc) *restClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewRESTClient(srv.URL+"/", testToken, time.Second, quietLogger()).(*restClient)
	client.retryDelay = time.Millisecond
	client.maxRetryDelay = 5 * time.Millisecond
	return client
}

func TestRESTClient_GetState(t *testing.T) {
	client := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("User-Agent"), "pma-watch-bridge/")
		assert.Equal(t, "/api/states/binary_sensor.front_door", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"entity_id": "binary_sensor.front_door",
			"state":     "off",
			"attributes": map[string]interface{}{
				"friendly_name": "Front Door",
				"device_class":  "door",
				"icon":          "mdi:door",
			},
		})
	})

	state, err := client.GetState(context.Background(), "binary_sensor.front_door")
	require.NoError(t, err)
	assert.Equal(t, "off", state.State)
	assert.Equal(t, "Front Door", state.FriendlyName())
	assert.Equal(t, "door", state.DeviceClass())
	assert.Equal(t, "mdi:door", state.Icon())
}

func TestRESTClient_GetStates(t *testing.T) {
	client := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/states", r.URL.Path)
		w.Write([]byte(`[
			{"entity_id":"light.kitchen","state":"on","attributes":{"friendly_name":"Kitchen"}},
			{"entity_id":"sensor.washer","state":"Idle","attributes":{}}
		]`))
	})

	states, err := client.GetStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "Kitchen", states[0].FriendlyName())
	assert.Equal(t, "", states[1].FriendlyName())
}

func TestRESTClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		check    func(t *testing.T, err error)
		attempts int32
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				assert.True(t, IsAuthError(err))
			},
			attempts: 1,
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				assert.True(t, IsNotFound(err))
			},
			attempts: 1,
		},
		{
			name:   "bad request is final",
			status: http.StatusBadRequest,
			check: func(t *testing.T, err error) {
				assert.False(t, IsConnectionError(err))
			},
			attempts: 1,
		},
		{
			name:   "server error is retried",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var haErr *HAError
				require.ErrorAs(t, err, &haErr)
				assert.Equal(t, http.StatusBadGateway, haErr.Code)
				assert.Equal(t, "GET /api/states/sensor.anything", haErr.Op)
			},
			attempts: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			})

			_, err := client.GetState(context.Background(), "sensor.anything")
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, tt.attempts, calls.Load())
		})
	}
}

func TestRESTClient_RetryRecovers(t *testing.T) {
	var calls atomic.Int32
	client := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"entity_id":"switch.kettle","state":"on","attributes":{}}`))
	})

	state, err := client.GetState(context.Background(), "switch.kettle")
	require.NoError(t, err)
	assert.Equal(t, "on", state.State)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRESTClient_TransportFailure(t *testing.T) {
	client := NewRESTClient("http://127.0.0.1:1", testToken, time.Second, quietLogger()).(*restClient)
	client.maxRetries = 0

	_, err := client.GetStates(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.False(t, IsAuthError(err))
}

func TestRESTClient_ContextCancelled(t *testing.T) {
	client := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetStates(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
