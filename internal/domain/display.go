package domain

import "time"

// ReceivedEvent is a decoded Event together with its upstream delivery metadata.
type ReceivedEvent struct {
	MessageID string
	Timestamp time.Time
	Event     Event
}

// DisplayEvent is an Event enriched with narrative text and presentation metadata.
type DisplayEvent struct {
	ID         string
	Kind       EventKind
	Event      Event
	Message    string
	ImageURL   string
	SoundURL   string
	Duration   time.Duration
	ReceivedAt time.Time
}
