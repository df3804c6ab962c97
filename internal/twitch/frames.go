package twitch

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// MessageType is the metadata.message_type of an EventSub frame.
type MessageType string

const (
	MessageWelcome      MessageType = "session_welcome"
	MessageKeepalive    MessageType = "session_keepalive"
	MessageNotification MessageType = "notification"
	MessageReconnect    MessageType = "session_reconnect"
	MessageRevocation   MessageType = "revocation"
)

func (t MessageType) known() bool {
	switch t {
	case MessageWelcome, MessageKeepalive, MessageNotification, MessageReconnect, MessageRevocation:
		return true
	default:
		return false
	}
}

var errMissingMessageType = errors.New("frame has no metadata.message_type")

// Metadata is the envelope shared by every EventSub frame.
type Metadata struct {
	MessageID           string      `json:"message_id"`
	MessageType         MessageType `json:"message_type"`
	MessageTimestamp    time.Time   `json:"message_timestamp"`
	SubscriptionType    string      `json:"subscription_type,omitempty"`
	SubscriptionVersion string      `json:"subscription_version,omitempty"`
}

// Frame is one parsed websocket text message. Payload is decoded lazily per message type.
type Frame struct {
	Metadata Metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

// Session describes the upstream websocket session announced in welcome and reconnect frames.
type Session struct {
	ID               string
	Status           string
	ConnectedAt      time.Time
	KeepaliveTimeout time.Duration
	ReconnectURL     string
}

// Notification carries one event delivery ready for Decode.
type Notification struct {
	MessageID           string
	Timestamp           time.Time
	SubscriptionType    string
	SubscriptionVersion string
	Event               json.RawMessage
}

// Revocation reports a subscription the upstream stopped delivering.
type Revocation struct {
	SubscriptionID string
	Type           string
	Status         string
}

type sessionPayload struct {
	Session struct {
		ID                      string    `json:"id"`
		Status                  string    `json:"status"`
		ConnectedAt             time.Time `json:"connected_at"`
		KeepaliveTimeoutSeconds *int      `json:"keepalive_timeout_seconds"`
		ReconnectURL            *string   `json:"reconnect_url"`
	} `json:"session"`
}

type subscriptionInfo struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

type notificationPayload struct {
	Subscription subscriptionInfo `json:"subscription"`
	Event        json.RawMessage  `json:"event"`
}

// ParseFrame parses the framing of a single EventSub message.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("parse eventsub frame: %w", err)
	}
	if f.Metadata.MessageType == "" {
		return Frame{}, errMissingMessageType
	}
	return f, nil
}

// Session decodes the session block of a welcome or reconnect frame.
func (f Frame) Session() (Session, error) {
	var p sessionPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return Session{}, fmt.Errorf("parse %s payload: %w", f.Metadata.MessageType, err)
	}
	if p.Session.ID == "" {
		return Session{}, fmt.Errorf("%s payload has no session id", f.Metadata.MessageType)
	}

	s := Session{
		ID:          p.Session.ID,
		Status:      p.Session.Status,
		ConnectedAt: p.Session.ConnectedAt,
	}
	if p.Session.KeepaliveTimeoutSeconds != nil {
		s.KeepaliveTimeout = time.Duration(*p.Session.KeepaliveTimeoutSeconds) * time.Second
	}
	if p.Session.ReconnectURL != nil {
		s.ReconnectURL = *p.Session.ReconnectURL
	}
	return s, nil
}

// Notification extracts the event delivery of a notification frame. Subscription type and
// version come from the metadata and fall back to the payload's subscription block.
func (f Frame) Notification() (Notification, error) {
	var p notificationPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return Notification{}, fmt.Errorf("parse notification payload: %w", err)
	}

	n := Notification{
		MessageID:           f.Metadata.MessageID,
		Timestamp:           f.Metadata.MessageTimestamp,
		SubscriptionType:    f.Metadata.SubscriptionType,
		SubscriptionVersion: f.Metadata.SubscriptionVersion,
		Event:               p.Event,
	}
	if n.SubscriptionType == "" {
		n.SubscriptionType = p.Subscription.Type
	}
	if n.SubscriptionVersion == "" {
		n.SubscriptionVersion = p.Subscription.Version
	}
	return n, nil
}

// Revocation decodes the subscription block of a revocation frame.
func (f Frame) Revocation() (Revocation, error) {
	var p notificationPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return Revocation{}, fmt.Errorf("parse revocation payload: %w", err)
	}
	return Revocation{
		SubscriptionID: p.Subscription.ID,
		Type:           p.Subscription.Type,
		Status:         p.Subscription.Status,
	}, nil
}
