package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// SessionState is a step of the event session lifecycle
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateAuthenticating
	StateSubscribeAttemptFiltered
	StateSubscribedFiltered
	StateSubscribedFirehose
	StateStreaming
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateSubscribeAttemptFiltered:
		return "subscribe_attempt_filtered"
	case StateSubscribedFiltered:
		return "subscribed_filtered"
	case StateSubscribedFirehose:
		return "subscribed_firehose"
	case StateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

// Subscription modes
const (
	ModeFiltered = "filtered"
	ModeFirehose = "firehose"
)

// TransitionHandler consumes decoded transitions one at a time
type TransitionHandler interface {
	Handle(ctx context.Context, t Transition)
}

// EntitySource supplies the entity ids for a filtered subscription
type EntitySource interface {
	DistinctEntityIDs(ctx context.Context) ([]string, error)
}

// SessionMetrics receives session lifecycle observations
type SessionMetrics interface {
	SetSessionState(state string)
	IncSubscription(mode string)
	IncTransition(mode string)
}

type noopSessionMetrics struct{}

func (noopSessionMetrics) SetSessionState(string) {}
func (noopSessionMetrics) IncSubscription(string) {}
func (noopSessionMetrics) IncTransition(string)   {}

// SessionConfig configures the websocket event session
type SessionConfig struct {
	URL              string
	Token            string
	PreferFiltered   bool
	SubscribeTimeout time.Duration
	PingInterval     time.Duration
}

// Session keeps one authenticated websocket connection to Home Assistant and
// turns its state stream into transitions. Run executes a single connection
// lifetime; reconnecting is the caller's job.
type Session struct {
	cfg      SessionConfig
	entities EntitySource
	handler  TransitionHandler
	metrics  SessionMetrics
	logger   *logrus.Logger

	state atomic.Int32
}

// NewSession creates a new event session
func NewSession(cfg SessionConfig, entities EntitySource, handler TransitionHandler, metrics SessionMetrics, logger *logrus.Logger) *Session {
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = noopSessionMetrics{}
	}
	return &Session{
		cfg:      cfg,
		entities: entities,
		handler:  handler,
		metrics:  metrics,
		logger:   logger,
	}
}

// State returns the current lifecycle state
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
	s.metrics.SetSessionState(state.String())
}

// idCounter hands out websocket command ids for one connection
type idCounter struct {
	mu   sync.Mutex
	next int
}

func (c *idCounter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return c.next
}

// inbound is one frame read by the pump goroutine
type inbound struct {
	data []byte
	err  error
}

// run holds the per-connection state of a Session.Run call
type run struct {
	*Session
	conn   *websocket.Conn
	log    *logrus.Entry
	ids    *idCounter
	frames <-chan inbound

	mode           string
	subscriptionID int
	firehoseSent   bool
	tracker        *entityTracker
}

// Run connects, authenticates, subscribes and streams until the connection
// ends or ctx is cancelled. The returned error is never nil.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateDisconnected)

	log := s.logger.WithField("session_id", uuid.New().String())

	s.setState(StateConnecting)
	wsURL, err := websocketURL(s.cfg.URL)
	if err != nil {
		return err
	}

	log.WithField("url", wsURL).Info("Connecting to Home Assistant WebSocket")

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return transportError("dial "+wsURL, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	r := &run{
		Session: s,
		conn:    conn,
		log:     log,
		ids:     &idCounter{},
		tracker: newEntityTracker(),
	}

	s.setState(StateAuthenticating)
	if err := r.authenticate(); err != nil {
		return r.finish(ctx, err)
	}
	log.Info("Authenticated to Home Assistant WebSocket")

	r.keepalive(done)
	r.frames = r.pump(done)

	if err := r.subscribe(ctx); err != nil {
		return r.finish(ctx, err)
	}

	s.setState(StateStreaming)
	return r.finish(ctx, r.stream(ctx))
}

func (r *run) finish(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		r.log.Info("Home Assistant session stopped")
		return ctx.Err()
	}
	r.log.WithError(err).Warn("Home Assistant session ended")
	return err
}

func (r *run) authenticate() error {
	deadline := time.Now().Add(10 * time.Second)
	r.conn.SetReadDeadline(deadline)
	r.conn.SetWriteDeadline(deadline)
	defer func() {
		r.conn.SetReadDeadline(time.Time{})
		r.conn.SetWriteDeadline(time.Time{})
	}()

	var msg WSMessage
	if err := r.conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("failed to read auth_required: %w", err)
	}
	if msg.Type != MsgTypeAuthRequired {
		return fmt.Errorf("expected %s, got %s", MsgTypeAuthRequired, msg.Type)
	}

	if err := r.conn.WriteJSON(AuthMessage{Type: MsgTypeAuth, AccessToken: r.cfg.Token}); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	var result WSMessage
	if err := r.conn.ReadJSON(&result); err != nil {
		return fmt.Errorf("failed to read auth result: %w", err)
	}

	switch result.Type {
	case MsgTypeAuthOK:
		r.log.WithField("ha_version", result.Version).Debug("WebSocket authentication completed successfully")
		return nil
	case MsgTypeAuthInvalid:
		return fmt.Errorf("%s: %w", result.Message, ErrUnauthorized)
	default:
		return fmt.Errorf("authentication failed: unexpected %s", result.Type)
	}
}

// pump reads frames on its own goroutine so the subscribe phase can wait with a
// timeout without putting a deadline on the connection.
func (r *run) pump(done <-chan struct{}) <-chan inbound {
	frames := make(chan inbound)
	go func() {
		for {
			if r.cfg.PingInterval > 0 {
				r.conn.SetReadDeadline(time.Now().Add(2 * r.cfg.PingInterval))
			}
			_, data, err := r.conn.ReadMessage()
			select {
			case frames <- inbound{data: data, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return frames
}

// keepalive pings the server and expects a pong or data within two intervals
func (r *run) keepalive(done <-chan struct{}) {
	interval := r.cfg.PingInterval
	if interval <= 0 {
		return
	}

	r.conn.SetPongHandler(func(string) error {
		return r.conn.SetReadDeadline(time.Now().Add(2 * interval))
	})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					r.log.WithError(err).Debug("Failed to send WebSocket ping")
					return
				}
			case <-done:
				return
			}
		}
	}()
}

func (r *run) next(ctx context.Context, timeout <-chan time.Time) (*WSMessage, []byte, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-timeout:
		return nil, nil, errSubscribeTimeout
	case in := <-r.frames:
		if in.err != nil {
			if websocket.IsCloseError(in.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, nil, transportError("read", ErrConnectionClosed)
			}
			return nil, nil, transportError("read", in.err)
		}
		var msg WSMessage
		if err := json.Unmarshal(in.data, &msg); err != nil {
			r.log.WithError(err).Debug("Skipping malformed WebSocket message")
			return nil, in.data, nil
		}
		return &msg, in.data, nil
	}
}

var errSubscribeTimeout = errors.New("subscribe acknowledgement timed out")

// subscribe tries the filtered subscription and falls back to the firehose
func (r *run) subscribe(ctx context.Context) error {
	if !r.cfg.PreferFiltered {
		return r.subscribeFirehose("filtered subscriptions disabled")
	}

	entityIDs, err := r.entities.DistinctEntityIDs(ctx)
	if err != nil {
		r.log.WithError(err).Warn("Failed to load watched entities")
		return r.subscribeFirehose("watched entities unavailable")
	}
	if len(entityIDs) == 0 {
		return r.subscribeFirehose("no watched entities")
	}

	r.setState(StateSubscribeAttemptFiltered)
	id := r.ids.Next()
	if err := r.conn.WriteJSON(SubscribeEntitiesMessage{ID: id, Type: MsgTypeSubscribeEntities, EntityIDs: entityIDs}); err != nil {
		return transportError("subscribe_entities", err)
	}

	r.log.WithFields(logrus.Fields{
		"message_id":   id,
		"entity_count": len(entityIDs),
	}).Debug("Requested filtered subscription")

	timer := time.NewTimer(r.cfg.SubscribeTimeout)
	defer timer.Stop()

	msg, _, err := r.next(ctx, timer.C)
	switch {
	case errors.Is(err, errSubscribeTimeout):
		return r.subscribeFirehose("filtered subscription not acknowledged")
	case err != nil:
		return err
	case msg == nil:
		return r.subscribeFirehose("unrecognised reply to filtered subscription")
	}

	switch {
	case msg.Type == MsgTypeResult && msg.ID == id && msg.Success != nil && *msg.Success:
		r.activate(ModeFiltered, id, StateSubscribedFiltered)
		return nil
	case msg.Type == MsgTypeEvent && msg.ID == id:
		// Initial state batch arrived without an explicit ack
		r.activate(ModeFiltered, id, StateSubscribedFiltered)
		r.dispatch(ctx, msg)
		return nil
	case msg.Type == MsgTypeResult && msg.ID == id:
		fields := logrus.Fields{"message_id": id}
		if msg.Error != nil {
			fields["code"] = msg.Error.Code
			fields["reason"] = msg.Error.Message
		}
		r.log.WithFields(fields).Info("Filtered subscription refused")
		return r.subscribeFirehose("filtered subscription refused")
	default:
		return r.subscribeFirehose("unrecognised reply to filtered subscription")
	}
}

// subscribeFirehose subscribes to every state_changed event, at most once per connection
func (r *run) subscribeFirehose(reason string) error {
	if r.firehoseSent {
		return nil
	}
	r.firehoseSent = true

	id := r.ids.Next()
	if err := r.conn.WriteJSON(SubscribeEventsMessage{ID: id, Type: MsgTypeSubscribeEvents, EventType: EventTypeStateChanged}); err != nil {
		return transportError("subscribe_events", err)
	}

	r.log.WithFields(logrus.Fields{
		"message_id": id,
		"reason":     reason,
	}).Info("Subscribed to the state_changed firehose")

	r.activate(ModeFirehose, id, StateSubscribedFirehose)
	return nil
}

func (r *run) activate(mode string, id int, state SessionState) {
	r.mode = mode
	r.subscriptionID = id
	r.setState(state)
	r.metrics.IncSubscription(mode)
	if mode == ModeFiltered {
		r.log.WithField("message_id", id).Info("Filtered subscription active")
	}
}

func (r *run) stream(ctx context.Context) error {
	for {
		msg, _, err := r.next(ctx, nil)
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}

		switch msg.Type {
		case MsgTypeEvent:
			r.dispatch(ctx, msg)
		case MsgTypeResult:
			if msg.ID == r.subscriptionID && msg.Success != nil && !*msg.Success {
				return ErrSubscriptionRejected
			}
		default:
			r.log.WithField("message_type", msg.Type).Debug("Ignoring WebSocket message")
		}
	}
}

// dispatch decodes one event and hands its transitions to the handler in order
func (r *run) dispatch(ctx context.Context, msg *WSMessage) {
	if msg.ID != r.subscriptionID || len(msg.Event) == 0 {
		return
	}

	var transitions []Transition
	var err error
	if r.mode == ModeFiltered {
		transitions, err = r.tracker.apply(msg.Event)
	} else {
		transitions, err = decodeStateChanged(msg.Event)
	}
	if err != nil {
		r.log.WithError(err).Debug("Skipping malformed event payload")
		return
	}

	for _, t := range transitions {
		r.metrics.IncTransition(r.mode)
		r.handle(ctx, t)
	}
}

func (r *run) handle(ctx context.Context, t Transition) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(logrus.Fields{
				"entity_id": t.EntityID,
				"panic":     rec,
			}).Error("Transition handler panicked")
		}
	}()
	r.handler.Handle(ctx, t)
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Host == "" {
		return "", ErrInvalidURL
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", ErrInvalidURL
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/websocket"
	return u.String(), nil
}
