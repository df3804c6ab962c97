package narrative

import (
	"context"

	"github.com/null-channel/twitch-alerts/internal/domain"
)

// DiscardStore is the NarrativeStore used without a database.
type DiscardStore struct{}

var _ domain.NarrativeStore = DiscardStore{}

func (DiscardStore) Record(context.Context, domain.ReceivedEvent, string) error { return nil }

func (DiscardStore) RecentForUser(context.Context, int64, int) ([]string, error) { return nil, nil }
