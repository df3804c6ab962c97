package domain

import "context"

// NarrativeGenerator turns an event into alert text.
type NarrativeGenerator interface {
	Generate(ctx context.Context, event Event) (string, error)
}

// NarrativeStore persists generated narratives.
type NarrativeStore interface {
	Record(ctx context.Context, received ReceivedEvent, text string) error
	RecentForUser(ctx context.Context, userID int64, limit int) ([]string, error)
}

// Deduplicator reports whether an upstream message id is seen for the first time.
type Deduplicator interface {
	FirstSeen(ctx context.Context, messageID string) (bool, error)
}
