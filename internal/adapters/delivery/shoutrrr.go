package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/frostdev-ops/pma-watch-bridge/internal/core/notifier"
	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// ErrNoChannelURL is returned when a channel has no configured service URL
var ErrNoChannelURL = errors.New("no delivery URL configured for channel")

// ErrTimeout is returned when a service does not answer in time
var ErrTimeout = errors.New("delivery timed out")

// messageSender is the part of a shoutrrr router the sender uses
type messageSender interface {
	Send(message string, params *types.Params) []error
}

// Config describes where each channel's notifications go
type Config struct {
	DefaultURL string
	Channels   map[string]string
	Timeout    time.Duration
}

// ShoutrrrSender implements notifier.Sender over shoutrrr service URLs
type ShoutrrrSender struct {
	cfg       Config
	senders   *cache.Cache
	newSender func(rawURL string) (messageSender, error)
	logger    *logrus.Logger
}

// NewShoutrrrSender creates a sender; service routers are built lazily per URL
func NewShoutrrrSender(cfg Config, logger *logrus.Logger) *ShoutrrrSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &ShoutrrrSender{
		cfg:       cfg,
		senders:   cache.New(cache.NoExpiration, 0),
		newSender: createRouter,
		logger:    logger,
	}
}

func createRouter(rawURL string) (messageSender, error) {
	router, err := shoutrrr.CreateSender(rawURL)
	if err != nil {
		return nil, err
	}
	return router, nil
}

// Send delivers one notification with a single attempt
func (s *ShoutrrrSender) Send(ctx context.Context, n notifier.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rawURL := s.urlFor(n.ChannelID)
	if rawURL == "" {
		return fmt.Errorf("%w: %s", ErrNoChannelURL, n.ChannelID)
	}

	sender, err := s.senderFor(rawURL)
	if err != nil {
		return fmt.Errorf("failed to create sender for channel %s: %w", n.ChannelID, err)
	}

	params := paramsFor(rawURL, n)
	done := make(chan []error, 1)
	go func() {
		done <- sender.Send(n.Message, params)
	}()

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case errs := <-done:
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("delivery to channel %s failed: %w", n.ChannelID, err)
		}
	case <-timer.C:
		return fmt.Errorf("%w after %s: %s", ErrTimeout, s.cfg.Timeout, n.ChannelID)
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.WithFields(logrus.Fields{
		"channel_id": n.ChannelID,
		"service":    scheme(rawURL),
	}).Debug("Notification delivered")

	return nil
}

// Validate checks that every configured URL can be turned into a sender
func (s *ShoutrrrSender) Validate() error {
	var errs []error
	if s.cfg.DefaultURL != "" {
		if _, err := s.senderFor(s.cfg.DefaultURL); err != nil {
			errs = append(errs, fmt.Errorf("default_url: %w", err))
		}
	}
	for channel, rawURL := range s.cfg.Channels {
		if _, err := s.senderFor(rawURL); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

func (s *ShoutrrrSender) urlFor(channelID string) string {
	if u, ok := s.cfg.Channels[channelID]; ok && u != "" {
		return u
	}
	return s.cfg.DefaultURL
}

func (s *ShoutrrrSender) senderFor(rawURL string) (messageSender, error) {
	if cached, ok := s.senders.Get(rawURL); ok {
		return cached.(messageSender), nil
	}

	sender, err := s.newSender(rawURL)
	if err != nil {
		return nil, err
	}
	s.senders.Set(rawURL, sender, cache.NoExpiration)
	return sender, nil
}

// paramsFor maps the display name and icon onto the service's own parameters
func paramsFor(rawURL string, n notifier.Notification) *types.Params {
	params := types.Params{}

	switch scheme(rawURL) {
	case "discord":
		if n.DisplayName != "" {
			params["username"] = n.DisplayName
		}
		if n.IconURL != "" {
			params["avatarurl"] = n.IconURL
		}
	case "slack":
		if n.DisplayName != "" {
			params["botname"] = n.DisplayName
		}
		if n.IconURL != "" {
			params["icon"] = n.IconURL
		}
	default:
		if n.DisplayName != "" {
			params["title"] = n.DisplayName
		}
	}

	return &params
}

func scheme(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}
