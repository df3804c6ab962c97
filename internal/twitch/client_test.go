package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/null-channel/twitch-alerts/internal/domain"
	"github.com/null-channel/twitch-alerts/internal/metrics"
)

// fakeEventSub is a websocket server that hands every accepted connection to the test.
type fakeEventSub struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	count atomic.Int32
}

func newFakeEventSub(t *testing.T) *fakeEventSub {
	t.Helper()
	f := &fakeEventSub{conns: make(chan *websocket.Conn, 8)}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.count.Add(1)
		f.conns <- conn
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeEventSub) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeEventSub) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-f.conns:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func welcomeFrame(sessionID string) string {
	return fmt.Sprintf(`{
		"metadata": {"message_id": "w-%s", "message_type": "session_welcome", "message_timestamp": "2026-03-01T20:00:00Z"},
		"payload": {"session": {"id": %q, "status": "connected", "connected_at": "2026-03-01T20:00:00Z", "keepalive_timeout_seconds": 10, "reconnect_url": null}}
	}`, sessionID, sessionID)
}

func reconnectFrame(sessionID, reconnectURL string) string {
	return fmt.Sprintf(`{
		"metadata": {"message_id": "r-%s", "message_type": "session_reconnect", "message_timestamp": "2026-03-01T20:05:00Z"},
		"payload": {"session": {"id": %q, "status": "reconnecting", "keepalive_timeout_seconds": null, "reconnect_url": %q, "connected_at": "2026-03-01T20:00:00Z"}}
	}`, sessionID, sessionID, reconnectURL)
}

func keepaliveFrame() string {
	return `{"metadata": {"message_id": "k", "message_type": "session_keepalive", "message_timestamp": "2026-03-01T20:00:10Z"}, "payload": {}}`
}

func notificationFrame(messageID, typ, version, event string) string {
	return fmt.Sprintf(`{
		"metadata": {"message_id": %q, "message_type": "notification", "message_timestamp": "2026-03-01T20:01:00Z",
			"subscription_type": %q, "subscription_version": %q},
		"payload": {"subscription": {"id": "sub-1", "type": %q, "version": %q, "status": "enabled"}, "event": %s}
	}`, messageID, typ, version, typ, version, event)
}

type recordingSubscriber struct {
	mu       sync.Mutex
	sessions []string
	err      error
}

func (s *recordingSubscriber) Subscribe(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sessionID)
	return s.err
}

func (s *recordingSubscriber) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *recordingSubscriber) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sessions...)
}

type harness struct {
	client *Client
	clock  *clockwork.FakeClock
	sub    *recordingSubscriber
	out    chan domain.ReceivedEvent
	cancel context.CancelFunc
	done   chan error
}

func startClient(t *testing.T, connectURL string) *harness {
	t.Helper()
	h := &harness{
		clock: clockwork.NewFakeClock(),
		sub:   &recordingSubscriber{},
		out:   make(chan domain.ReceivedEvent, 8),
		done:  make(chan error, 1),
	}

	client, err := NewClient(ClientConfig{ConnectURL: connectURL}, h.sub, h.out, h.clock)
	require.NoError(t, err)
	h.client = client

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- client.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("client did not stop after cancel")
		}
	})
	return h
}

func (h *harness) waitForState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.client.State() == want }, 5*time.Second, 5*time.Millisecond,
		"client never reached %s (last %s)", want, h.client.State())
}

func (h *harness) blockUntilWaiters(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, n))
}

func TestNewClient_RejectsInvalidURL(t *testing.T) {
	out := make(chan domain.ReceivedEvent)
	for _, raw := range []string{"https://eventsub.wss.twitch.tv/ws", "wss:///ws", "::not a url"} {
		_, err := NewClient(ClientConfig{ConnectURL: raw}, nil, out, nil)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestNewClient_AppliesDefaults(t *testing.T) {
	c, err := NewClient(ClientConfig{}, nil, make(chan domain.ReceivedEvent), nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultConnectURL, c.ConnectURL())
	assert.Equal(t, DefaultKeepaliveTimeout, c.cfg.KeepaliveTimeout)
	assert.Equal(t, DefaultReconnectBackoff, c.cfg.ReconnectBackoff)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_WelcomeSubscribesAndStreamsEvents(t *testing.T) {
	upstream := newFakeEventSub(t)
	h := startClient(t, upstream.url())

	conn := upstream.accept(t)
	send(t, conn, welcomeFrame("session-1"))
	h.waitForState(t, StateStreaming)

	assert.Equal(t, []string{"session-1"}, h.sub.Sessions())
	assert.Equal(t, "session-1", h.client.Session().ID)
	assert.Equal(t, 10*time.Second, h.client.Session().KeepaliveTimeout)

	send(t, conn, notificationFrame("msg-1", "channel.raid", "1", `{
		"from_broadcaster_user_id": "1234", "from_broadcaster_user_login": "cool_user", "from_broadcaster_user_name": "Cool_User",
		"to_broadcaster_user_id": "1337", "to_broadcaster_user_login": "us", "to_broadcaster_user_name": "Us",
		"viewers": 42
	}`))

	select {
	case got := <-h.out:
		assert.Equal(t, "msg-1", got.MessageID)
		raid, ok := got.Event.(domain.Raid)
		require.True(t, ok)
		assert.Equal(t, 42, raid.Viewers)
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestClient_DecodeFailureKeepsStreaming(t *testing.T) {
	upstream := newFakeEventSub(t)
	h := startClient(t, upstream.url())

	conn := upstream.accept(t)
	send(t, conn, welcomeFrame("session-1"))
	h.waitForState(t, StateStreaming)

	send(t, conn, notificationFrame("bad-1", "channel.ban", "1", `{}`))
	send(t, conn, notificationFrame("bad-2", "channel.follow", "2", `{"user_id": "not-a-number"}`))
	send(t, conn, notificationFrame("good-1", "channel.follow", "2", `{"user_id": "7", "user_login": "a", "user_name": "A", "followed_at": "2026-03-01T20:01:00Z"}`))

	select {
	case got := <-h.out:
		assert.Equal(t, "good-1", got.MessageID)
	case <-time.After(5 * time.Second):
		t.Fatal("valid notification not delivered after decode failures")
	}
	assert.Equal(t, int32(1), upstream.count.Load())
	assert.Equal(t, StateStreaming, h.client.State())
}

func TestClient_SubscribeErrorDoesNotEndConnection(t *testing.T) {
	upstream := newFakeEventSub(t)
	h := startClient(t, upstream.url())
	h.sub.fail(errors.New("helix unavailable"))

	conn := upstream.accept(t)
	send(t, conn, welcomeFrame("session-1"))
	h.waitForState(t, StateStreaming)
	assert.Equal(t, int32(1), upstream.count.Load())
}

func TestClient_KeepaliveTimeoutReconnects(t *testing.T) {
	upstream := newFakeEventSub(t)
	h := startClient(t, upstream.url())
	before := testutil.ToFloat64(metrics.EventSubReconnectsTotal.WithLabelValues(reasonKeepaliveTimeout))

	conn := upstream.accept(t)
	send(t, conn, welcomeFrame("session-1"))
	h.waitForState(t, StateStreaming)

	// Only the watchdog is waiting on the clock once streaming.
	h.blockUntilWaiters(t, 1)
	h.clock.Advance(DefaultKeepaliveTimeout)

	// The reconnect backoff is the next clock waiter.
	h.blockUntilWaiters(t, 1)
	assert.Equal(t, StateReconnecting, h.client.State())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.EventSubReconnectsTotal.WithLabelValues(reasonKeepaliveTimeout)))

	h.clock.Advance(DefaultReconnectBackoff)
	second := upstream.accept(t)
	send(t, second, welcomeFrame("session-2"))
	h.waitForState(t, StateStreaming)

	assert.Equal(t, []string{"session-1", "session-2"}, h.sub.Sessions())
}

func TestClient_KeepaliveResetsWatchdog(t *testing.T) {
	upstream := newFakeEventSub(t)
	h := startClient(t, upstream.url())
	keepalives := metrics.EventSubFramesTotal.WithLabelValues(string(MessageKeepalive))

	conn := upstream.accept(t)
	send(t, conn, welcomeFrame("session-1"))
	h.waitForState(t, StateStreaming)
	h.blockUntilWaiters(t, 1)

	h.clock.Advance(DefaultKeepaliveTimeout - time.Second)
	before := testutil.ToFloat64(keepalives)
	send(t, conn, keepaliveFrame())
	require.Eventually(t, func() bool { return testutil.ToFloat64(keepalives) == before+1 }, 5*time.Second, 5*time.Millisecond)
	h.blockUntilWaiters(t, 1)

	// Past the original deadline but inside the renewed one.
	h.clock.Advance(2 * time.Second)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, StateStreaming, h.client.State())
	assert.Equal(t, int32(1), upstream.count.Load())
}

func TestClient_HandshakeTimeoutReconnects(t *testing.T) {
	upstream := newFakeEventSub(t)
	h := startClient(t, upstream.url())

	upstream.accept(t)
	h.waitForState(t, StateAwaitingHandshake)
	h.blockUntilWaiters(t, 1)
	h.clock.Advance(DefaultHandshakeTimeout)

	h.blockUntilWaiters(t, 1)
	h.clock.Advance(DefaultReconnectBackoff)
	upstream.accept(t)
	assert.Equal(t, int32(2), upstream.count.Load())
	assert.Empty(t, h.sub.Sessions())
}

func TestClient_SessionReconnectMovesToNewURL(t *testing.T) {
	first := newFakeEventSub(t)
	second := newFakeEventSub(t)
	h := startClient(t, first.url())

	conn := first.accept(t)
	send(t, conn, welcomeFrame("session-1"))
	h.waitForState(t, StateStreaming)

	send(t, conn, reconnectFrame("session-1", second.url()))

	// No clock advance: a server-requested move skips the backoff.
	moved := second.accept(t)
	assert.Equal(t, second.url(), h.client.ConnectURL())

	send(t, moved, welcomeFrame("session-2"))
	h.waitForState(t, StateStreaming)
	assert.Equal(t, []string{"session-1", "session-2"}, h.sub.Sessions())
	assert.Equal(t, int32(1), first.count.Load())
}

func TestClient_InvalidReconnectURLIgnored(t *testing.T) {
	upstream := newFakeEventSub(t)
	h := startClient(t, upstream.url())

	conn := upstream.accept(t)
	send(t, conn, welcomeFrame("session-1"))
	h.waitForState(t, StateStreaming)

	send(t, conn, reconnectFrame("session-1", "https://not-a-websocket.example.com"))

	again := upstream.accept(t)
	assert.Equal(t, upstream.url(), h.client.ConnectURL())
	send(t, again, welcomeFrame("session-2"))
	h.waitForState(t, StateStreaming)
}

func TestClient_ServerCloseReconnects(t *testing.T) {
	upstream := newFakeEventSub(t)
	h := startClient(t, upstream.url())

	conn := upstream.accept(t)
	send(t, conn, welcomeFrame("session-1"))
	h.waitForState(t, StateStreaming)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4002, "failed ping-pong")))

	h.waitForState(t, StateReconnecting)
	h.blockUntilWaiters(t, 1)
	h.clock.Advance(DefaultReconnectBackoff)
	upstream.accept(t)
}

func TestClient_MalformedFrameReconnects(t *testing.T) {
	upstream := newFakeEventSub(t)
	h := startClient(t, upstream.url())

	conn := upstream.accept(t)
	send(t, conn, `{"not": "eventsub"}`)

	h.waitForState(t, StateReconnecting)
	h.blockUntilWaiters(t, 1)
	h.clock.Advance(DefaultReconnectBackoff)
	upstream.accept(t)
}

func TestClient_DialFailureRetriesAfterBackoff(t *testing.T) {
	upstream := newFakeEventSub(t)
	target := upstream.url()
	upstream.srv.Close()

	h := startClient(t, target)
	h.blockUntilWaiters(t, 1)
	assert.Equal(t, StateReconnecting, h.client.State())
}

func TestClient_RunReturnsOnCancel(t *testing.T) {
	upstream := newFakeEventSub(t)
	clock := clockwork.NewFakeClock()
	c, err := NewClient(ClientConfig{ConnectURL: upstream.url()}, nil, make(chan domain.ReceivedEvent), clock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	conn := upstream.accept(t)
	send(t, conn, welcomeFrame("session-1"))
	require.Eventually(t, func() bool { return c.State() == StateStreaming }, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "awaiting_handshake", StateAwaitingHandshake.String())
	assert.Equal(t, "state(42)", State(42).String())
}
