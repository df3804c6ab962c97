package narrative

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/null-channel/twitch-alerts/internal/domain"
	"github.com/null-channel/twitch-alerts/internal/metrics"
	"github.com/null-channel/twitch-alerts/internal/platform/retry"
	"github.com/null-channel/twitch-alerts/internal/platform/version"
)

const (
	chatCompletionsPath   = "/v1/chat/completions"
	defaultChatModel      = "gpt-4o-mini"
	defaultChatTimeout    = 15 * time.Second
	defaultHistoryLimit   = 3
	maxChatTokens         = 120
	maxErrorBodyBytes     = 512
	breakerName           = "narrative-chat"
	breakerTripFailures   = 3
	breakerOpenTimeout    = 30 * time.Second
	breakerHalfOpenProbes = 1
)

var ErrEmptyCompletion = errors.New("chat completion returned no content")

// HistoryReader returns previously generated story segments for a user, newest first.
type HistoryReader interface {
	RecentForUser(ctx context.Context, userID int64, limit int) ([]string, error)
}

type ChatConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	PartyName string
	Timeout   time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient   *http.Client
	History      HistoryReader
	HistoryLimit int
}

// ChatGenerator asks an OpenAI-compatible chat completions endpoint for a short story. Calls go
// through a circuit breaker that fails fast while the endpoint keeps erroring.
type ChatGenerator struct {
	endpoint   string
	apiKey     string
	model      string
	party      string
	httpClient *http.Client
	history    HistoryReader
	limit      int
	breaker    *gobreaker.CircuitBreaker[string]
}

var _ domain.NarrativeGenerator = (*ChatGenerator)(nil)

func NewChatGenerator(cfg ChatConfig) (*ChatGenerator, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("chat base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("chat API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultChatModel
	}
	if cfg.PartyName == "" {
		cfg.PartyName = DefaultPartyName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultChatTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return &ChatGenerator{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + chatCompletionsPath,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		party:      cfg.PartyName,
		httpClient: cfg.HTTPClient,
		history:    cfg.History,
		limit:      cfg.HistoryLimit,
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        breakerName,
			MaxRequests: breakerHalfOpenProbes,
			Timeout:     breakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerTripFailures
			},
			IsExcluded: func(err error) bool {
				return errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
				metrics.CircuitBreakerStateChanges.WithLabelValues(name, to.String()).Inc()
				metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			},
		}),
	}, nil
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// State reports the breaker state.
func (g *ChatGenerator) State() gobreaker.State {
	return g.breaker.State()
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *ChatGenerator) Generate(ctx context.Context, ev domain.Event) (string, error) {
	prompt, err := render(chatPrompts, ev, g.party)
	if err != nil {
		return "", err
	}

	messages := []chatMessage{{Role: "system", Content: persona(g.party)}}
	messages = append(messages, g.priorSegments(ctx, ev)...)
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	return g.breaker.Execute(func() (string, error) {
		return g.complete(ctx, chatRequest{Model: g.model, Messages: messages, MaxTokens: maxChatTokens})
	})
}

// priorSegments replays the user's earlier stories, oldest first, so the new one can continue
// them. History lookups are best effort.
func (g *ChatGenerator) priorSegments(ctx context.Context, ev domain.Event) []chatMessage {
	if g.history == nil {
		return nil
	}
	userID, ok, err := domain.UserID(ev)
	if err != nil || !ok {
		return nil
	}

	segments, err := g.history.RecentForUser(ctx, userID, g.limit)
	if err != nil {
		metrics.NarrativeStoreErrorsTotal.WithLabelValues("recent_for_user").Inc()
		slog.WarnContext(ctx, "Failed to load story history", "user_id", userID, "error", err)
		return nil
	}

	out := make([]chatMessage, 0, len(segments))
	for i := len(segments) - 1; i >= 0; i-- {
		out = append(out, chatMessage{Role: "assistant", Content: segments[i]})
	}
	return out
}

func (g *ChatGenerator) complete(ctx context.Context, body chatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &retry.StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(snippet))}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
