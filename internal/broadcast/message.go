package broadcast

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/null-channel/twitch-alerts/internal/domain"
)

const (
	MessageTypeShow  = "show"
	MessageTypeClear = "clear"
)

// ShowMessage is the overlay wire message that puts an event on screen. DisplayTime is in
// milliseconds.
type ShowMessage struct {
	Type        string           `json:"type"`
	ID          string           `json:"id"`
	Kind        domain.EventKind `json:"kind"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	ImageURL    string           `json:"image_url,omitempty"`
	SoundURL    string           `json:"sound_url,omitempty"`
	DisplayTime int64            `json:"display_time"`
	ReceivedAt  time.Time        `json:"received_at"`
	Event       domain.Event     `json:"event"`
}

// ClearMessage removes the event with ID from the screen.
type ClearMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NewShowMessage renders ev. It fails for events outside the closed Event union.
func NewShowMessage(ev domain.DisplayEvent) (ShowMessage, error) {
	title, err := domain.Title(ev.Event)
	if err != nil {
		return ShowMessage{}, err
	}
	return ShowMessage{
		Type:        MessageTypeShow,
		ID:          ev.ID,
		Kind:        ev.Kind,
		Title:       title,
		Message:     ev.Message,
		ImageURL:    ev.ImageURL,
		SoundURL:    ev.SoundURL,
		DisplayTime: ev.Duration.Milliseconds(),
		ReceivedAt:  ev.ReceivedAt,
		Event:       ev.Event,
	}, nil
}

func encodeShow(ev domain.DisplayEvent) ([]byte, error) {
	msg, err := NewShowMessage(ev)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode show message: %w", err)
	}
	return data, nil
}

func encodeClear(id string) ([]byte, error) {
	data, err := json.Marshal(ClearMessage{Type: MessageTypeClear, ID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to encode clear message: %w", err)
	}
	return data, nil
}
