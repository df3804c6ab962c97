package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/null-channel/twitch-alerts/internal/domain"
	"github.com/null-channel/twitch-alerts/internal/metrics"
)

const (
	DefaultConnectURL       = "wss://eventsub.wss.twitch.tv/ws"
	DefaultKeepaliveTimeout = 30 * time.Second
	DefaultReconnectBackoff = time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultSubscribeTimeout = 10 * time.Second

	maxFrameSize = 512 * 1024
)

// Reconnect reasons, used as the eventsub_reconnects_total label.
const (
	reasonDialError        = "dial_error"
	reasonReadError        = "read_error"
	reasonServerClose      = "server_close"
	reasonKeepaliveTimeout = "keepalive_timeout"
	reasonServerReconnect  = "server_reconnect"
	reasonProtocolError    = "protocol_error"
)

var (
	ErrKeepaliveTimeout = errors.New("no frame received within keepalive timeout")
	ErrInvalidURL       = errors.New("eventsub url must use ws or wss and name a host")
)

// State is the ingestion client's position in its connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHandshake
	StateSubscribing
	StateStreaming
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Subscriber registers the monitored subscriptions for a freshly welcomed session.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) error
}

type ClientConfig struct {
	ConnectURL       string
	KeepaliveTimeout time.Duration
	ReconnectBackoff time.Duration
	HandshakeTimeout time.Duration
	SubscribeTimeout time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.ConnectURL == "" {
		c.ConnectURL = DefaultConnectURL
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = DefaultKeepaliveTimeout
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = DefaultReconnectBackoff
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = DefaultSubscribeTimeout
	}
	return c
}

// Client maintains the EventSub websocket session and pushes decoded events to its outbound channel.
type Client struct {
	cfg        ClientConfig
	subscriber Subscriber
	out        chan<- domain.ReceivedEvent
	clock      clockwork.Clock
	dialer     *websocket.Dialer

	state atomic.Int32

	mu         sync.Mutex
	connectURL string
	session    Session
}

// NewClient validates the connect URL and builds a client. Nothing is dialed until Run.
func NewClient(cfg ClientConfig, subscriber Subscriber, out chan<- domain.ReceivedEvent, clock clockwork.Clock) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := validateURL(cfg.ConnectURL); err != nil {
		return nil, fmt.Errorf("invalid connect url %q: %w", cfg.ConnectURL, err)
	}
	if out == nil {
		return nil, errors.New("outbound channel is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	c := &Client{
		cfg:        cfg,
		subscriber: subscriber,
		out:        out,
		clock:      clock,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		connectURL: cfg.ConnectURL,
	}
	c.setState(StateDisconnected)
	return c, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
	metrics.EventSubConnectionState.Set(float64(s))
}

// ConnectURL returns the URL the next dial will target.
func (c *Client) ConnectURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectURL
}

// Session returns the most recently announced upstream session.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) storeSession(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = s
	if s.ReconnectURL == "" {
		return
	}
	if err := validateURL(s.ReconnectURL); err != nil {
		slog.Warn("Ignoring invalid EventSub reconnect URL", "url", s.ReconnectURL, "error", err)
		return
	}
	c.connectURL = s.ReconnectURL
}

// Run connects and streams until ctx is cancelled. Connection faults never end Run; they
// are logged, counted, and followed by a reconnect after ReconnectBackoff.
func (c *Client) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)

	for {
		reason, err := c.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.setState(StateReconnecting)
		metrics.EventSubReconnectsTotal.WithLabelValues(reason).Inc()

		if reason == reasonServerReconnect {
			slog.Info("EventSub server requested reconnect", "url", c.ConnectURL())
			continue
		}

		slog.Warn("EventSub connection lost, reconnecting", "reason", reason, "error", err, "backoff", c.cfg.ReconnectBackoff)
		select {
		case <-c.clock.After(c.cfg.ReconnectBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runConnection owns one websocket from dial to teardown and reports why it ended.
func (c *Client) runConnection(ctx context.Context) (string, error) {
	c.setState(StateConnecting)
	target := c.ConnectURL()

	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		metrics.EventSubConnectionsTotal.WithLabelValues("error").Inc()
		return reasonDialError, fmt.Errorf("dial %s: %w", target, err)
	}
	metrics.EventSubConnectionsTotal.WithLabelValues("success").Inc()
	conn.SetReadLimit(maxFrameSize)
	c.setState(StateAwaitingHandshake)
	slog.Debug("EventSub connected", "url", target)

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	go readFrames(conn, frames, readErr, done)
	defer func() {
		close(done)
		_ = conn.Close()
	}()

	handshaken := false
	window := c.cfg.HandshakeTimeout
	watchdog := c.clock.NewTimer(window)
	defer watchdog.Stop()

	for {
		var data []byte
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err := <-readErr:
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return reasonServerClose, err
			}
			return reasonReadError, err
		case data = <-frames:
		case <-watchdog.Chan():
			// A frame that arrived together with the deadline wins.
			select {
			case data = <-frames:
			default:
				return reasonKeepaliveTimeout, ErrKeepaliveTimeout
			}
		}

		end, reason, err := c.handleFrame(ctx, data, &handshaken)
		if end {
			return reason, err
		}

		if handshaken {
			window = c.cfg.KeepaliveTimeout
		}
		resetTimer(watchdog, window)

		if handshaken && c.State() != StateStreaming {
			c.setState(StateStreaming)
		}
	}
}

func readFrames(conn *websocket.Conn, frames chan<- []byte, readErr chan<- error, done <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case frames <- data:
		case <-done:
			return
		}
	}
}

func resetTimer(t clockwork.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
	t.Reset(d)
}

// handleFrame processes one frame. end reports that the connection must be torn down.
func (c *Client) handleFrame(ctx context.Context, data []byte, handshaken *bool) (end bool, reason string, err error) {
	frame, err := ParseFrame(data)
	if err != nil {
		metrics.EventSubFramesTotal.WithLabelValues("malformed").Inc()
		return true, reasonProtocolError, err
	}

	label := string(frame.Metadata.MessageType)
	if !frame.Metadata.MessageType.known() {
		label = "unknown"
	}
	metrics.EventSubFramesTotal.WithLabelValues(label).Inc()

	switch frame.Metadata.MessageType {
	case MessageWelcome:
		sess, err := frame.Session()
		if err != nil {
			return true, reasonProtocolError, err
		}
		c.storeSession(sess)
		slog.Info("EventSub session welcomed", "session_id", sess.ID, "keepalive_timeout", sess.KeepaliveTimeout)

		if !*handshaken {
			*handshaken = true
			c.subscribe(ctx, sess.ID)
		}

	case MessageReconnect:
		sess, err := frame.Session()
		if err != nil {
			return true, reasonProtocolError, err
		}
		c.storeSession(sess)
		return true, reasonServerReconnect, nil

	case MessageKeepalive:

	case MessageNotification:
		c.handleNotification(ctx, frame)

	case MessageRevocation:
		rev, err := frame.Revocation()
		if err != nil {
			slog.Warn("Failed to parse EventSub revocation", "error", err)
			break
		}
		slog.Warn("EventSub subscription revoked", "subscription_id", rev.SubscriptionID, "type", rev.Type, "status", rev.Status)

	default:
		slog.Debug("Ignoring unknown EventSub message type", "message_type", frame.Metadata.MessageType)
	}

	return false, "", nil
}

func (c *Client) subscribe(ctx context.Context, sessionID string) {
	if c.subscriber == nil {
		return
	}
	c.setState(StateSubscribing)

	subCtx, cancel := context.WithTimeout(ctx, c.cfg.SubscribeTimeout)
	defer cancel()

	if err := c.subscriber.Subscribe(subCtx, sessionID); err != nil {
		slog.Error("Failed to register EventSub subscriptions", "session_id", sessionID, "error", err)
	}
}

func (c *Client) handleNotification(ctx context.Context, frame Frame) {
	n, err := frame.Notification()
	if err != nil {
		metrics.EventSubNotificationsTotal.WithLabelValues(typeLabel(frame.Metadata.SubscriptionType), "invalid").Inc()
		slog.Warn("Failed to parse EventSub notification", "message_id", frame.Metadata.MessageID, "error", err)
		return
	}

	ev, err := Decode(n)
	if err != nil {
		result := "invalid"
		if errors.Is(err, domain.ErrUnsupportedEventKind) {
			result = "unsupported"
		}
		metrics.EventSubNotificationsTotal.WithLabelValues(typeLabel(n.SubscriptionType), result).Inc()
		slog.Warn("Dropping EventSub notification",
			"message_id", n.MessageID,
			"subscription_type", n.SubscriptionType,
			"subscription_version", n.SubscriptionVersion,
			"error", err)
		return
	}
	metrics.EventSubNotificationsTotal.WithLabelValues(n.SubscriptionType, "decoded").Inc()

	received := domain.ReceivedEvent{MessageID: n.MessageID, Timestamp: n.Timestamp, Event: ev}
	select {
	case c.out <- received:
	case <-ctx.Done():
	}
}

func typeLabel(typ string) string {
	if isMonitoredType(typ) {
		return typ
	}
	return "other"
}
