package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frostdev-ops/pma-watch-bridge/pkg/version"
	"github.com/sirupsen/logrus"
)

const maxResponseBytes = 16 << 20

// RESTClient is the entity metadata source
type RESTClient interface {
	GetStates(ctx context.Context) ([]EntityState, error)
	GetState(ctx context.Context, entityID string) (*EntityState, error)
}

type restClient struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	logger     *logrus.Logger

	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
}

// NewRESTClient creates a read-only client for the /api/states endpoints.
// 429 and 5xx answers and transport failures are retried with doubling delays.
func NewRESTClient(baseURL, token string, timeout time.Duration, logger *logrus.Logger) RESTClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &restClient{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		token:         token,
		userAgent:     "pma-watch-bridge/" + version.GetVersion(),
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
		maxRetries:    3,
		retryDelay:    time.Second,
		maxRetryDelay: 10 * time.Second,
	}
}

func (c *restClient) GetStates(ctx context.Context) ([]EntityState, error) {
	var states []EntityState
	if err := c.get(ctx, "/api/states", &states); err != nil {
		return nil, err
	}

	c.logger.WithField("count", len(states)).Debug("Retrieved entity states")
	return states, nil
}

func (c *restClient) GetState(ctx context.Context, entityID string) (*EntityState, error) {
	var state EntityState
	if err := c.get(ctx, "/api/states/"+url.PathEscape(entityID), &state); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"entity_id": entityID,
		"state":     state.State,
	}).Debug("Retrieved entity state")
	return &state, nil
}

// get fetches path and decodes the JSON answer into out
func (c *restClient) get(ctx context.Context, path string, out interface{}) error {
	op := "GET " + path

	var lastErr error
	delay := c.retryDelay
	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, c.maxRetryDelay)
		}

		body, err := c.once(ctx, op, path)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return &HAError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		haErr, ok := err.(*HAError)
		if ok && haErr.Code != 0 && !retryable(haErr.Code) {
			return err
		}
		if ok && haErr.Code == http.StatusTooManyRequests {
			delay = c.maxRetryDelay
		}

		lastErr = err
		c.logger.WithError(err).WithField("attempt", attempt).Warn("Home Assistant request failed")
	}

	return lastErr
}

func (c *restClient) once(ctx context.Context, op, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &HAError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(op, resp.StatusCode, body)
	}
	return body, nil
}
