package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nicklaw5/helix/v2"

	"github.com/null-channel/twitch-alerts/internal/metrics"
	"github.com/null-channel/twitch-alerts/internal/platform/retry"
	"github.com/null-channel/twitch-alerts/internal/platform/version"
)

const helixRequestTimeout = 10 * time.Second

// DefaultSubscribePolicy retries each subscription a few times within the client's subscribe timeout.
var DefaultSubscribePolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   250 * time.Millisecond,
	MaxBackoff:       2 * time.Second,
	RateLimitBackoff: 2 * time.Second,
}

type HelixConfig struct {
	ClientID        string
	UserAccessToken string
	BroadcasterID   string
	// APIBaseURL overrides the Helix endpoint (tests, mock API).
	APIBaseURL string
	HTTPClient *http.Client
	Retry      retry.Policy
}

// HelixSubscriber registers the Monitored subscriptions against a websocket session.
type HelixSubscriber struct {
	mu            sync.Mutex
	client        *helix.Client
	broadcasterID string
	policy        retry.Policy
}

func NewHelixSubscriber(cfg HelixConfig) (*HelixSubscriber, error) {
	if cfg.BroadcasterID == "" {
		return nil, errors.New("broadcaster id is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: helixRequestTimeout}
	}

	client, err := helix.NewClient(&helix.Options{
		ClientID:        cfg.ClientID,
		UserAccessToken: cfg.UserAccessToken,
		APIBaseURL:      cfg.APIBaseURL,
		UserAgent:       version.UserAgent(),
		HTTPClient:      httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = DefaultSubscribePolicy
	}

	return &HelixSubscriber{
		client:        client,
		broadcasterID: cfg.BroadcasterID,
		policy:        policy,
	}, nil
}

// Subscribe creates every Monitored subscription for sessionID. An existing subscription (409)
// counts as success, so calling it again for the same session is harmless. Failures of
// individual types are joined into the returned error.
func (s *HelixSubscriber) Subscribe(ctx context.Context, sessionID string) error {
	var errs []error
	for _, sub := range Monitored {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sub.Type, ctx.Err()))
			break
		}

		err := retry.DoVoid(ctx, s.policy, retry.ClassifyHTTP, func() error {
			return s.create(sub, sessionID)
		})
		if err != nil {
			metrics.EventSubSubscribeAttemptsTotal.WithLabelValues(sub.Type, "failed").Inc()
			slog.Error("Failed to create EventSub subscription", "type", sub.Type, "version", sub.Version, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sub.Type, err))
		}
	}
	return errors.Join(errs...)
}

func (s *HelixSubscriber) create(sub Subscription, sessionID string) error {
	s.mu.Lock()
	resp, err := s.client.CreateEventSubSubscription(&helix.EventSubSubscription{
		Type:      sub.Type,
		Version:   sub.Version,
		Condition: s.condition(sub),
		Transport: helix.EventSubTransport{
			Method:    "websocket",
			SessionID: sessionID,
		},
	})
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to create eventsub subscription: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		metrics.EventSubSubscribeAttemptsTotal.WithLabelValues(sub.Type, "created").Inc()
		slog.Info("Created EventSub subscription", "type", sub.Type, "version", sub.Version)
		return nil
	case http.StatusConflict:
		metrics.EventSubSubscribeAttemptsTotal.WithLabelValues(sub.Type, "exists").Inc()
		slog.Debug("EventSub subscription already exists", "type", sub.Type)
		return nil
	default:
		return &retry.StatusError{StatusCode: resp.StatusCode, Message: resp.ErrorMessage}
	}
}

func (s *HelixSubscriber) condition(sub Subscription) helix.EventSubCondition {
	switch sub.Type {
	case "channel.follow":
		return helix.EventSubCondition{
			BroadcasterUserID: s.broadcasterID,
			ModeratorUserID:   s.broadcasterID,
		}
	case "channel.raid":
		return helix.EventSubCondition{ToBroadcasterUserID: s.broadcasterID}
	default:
		return helix.EventSubCondition{BroadcasterUserID: s.broadcasterID}
	}
}
