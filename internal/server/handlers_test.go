package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/null-channel/twitch-alerts/internal/broadcast"
	"github.com/null-channel/twitch-alerts/internal/domain"
	"github.com/null-channel/twitch-alerts/internal/twitch"
)

type stubIngestion struct {
	state twitch.State
}

func (s stubIngestion) State() twitch.State { return s.state }

type nopSender struct{}

func (nopSender) Send([]byte) error { return nil }
func (nopSender) Close(string)      {}

type adminHarness struct {
	srv      *Server
	queue    *broadcast.QueueStore
	registry *broadcast.Registry
	clock    *clockwork.FakeClock
}

func newAdminHarness(t *testing.T, mutate func(*AdminConfig)) *adminHarness {
	t.Helper()
	h := &adminHarness{
		queue:    broadcast.NewQueueStore(3),
		registry: broadcast.NewRegistry(),
		clock:    clockwork.NewFakeClock(),
	}
	cfg := AdminConfig{
		Queue:     h.queue,
		Registry:  h.registry,
		Ingestion: stubIngestion{state: twitch.StateStreaming},
		Clock:     h.clock,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.srv = NewAdminServer(cfg)
	return h
}

func (h *adminHarness) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func cheer(id string, bits int) domain.DisplayEvent {
	return domain.DisplayEvent{
		ID:         id,
		Kind:       domain.KindCheer,
		Event:      domain.Cheer{UserName: "viewer", Bits: bits},
		Message:    "A shower of gold",
		Duration:   4 * time.Second,
		ReceivedAt: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
	}
}

func subscription(id, user string) domain.DisplayEvent {
	return domain.DisplayEvent{
		ID:       id,
		Kind:     domain.KindSubscribe,
		Event:    domain.Subscribe{UserName: user, Tier: domain.Tier1},
		Message:  user + " joins the party",
		Duration: 3 * time.Second,
	}
}

// eventBody mirrors eventView with the event payload left untyped for decoding.
type eventBody struct {
	ID          string           `json:"id"`
	Kind        domain.EventKind `json:"kind"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	DisplayTime int64            `json:"display_time"`
	Event       map[string]any   `json:"event"`
}

type pendingBody struct {
	Active bool        `json:"active"`
	Total  int         `json:"total"`
	Events []eventBody `json:"events"`
}

var _ http.Handler = (*Server)(nil)
