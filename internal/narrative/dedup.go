package narrative

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/null-channel/twitch-alerts/internal/domain"
)

const DefaultDedupSize = 1024

// MemoryDeduplicator remembers the most recent message ids in process. It is used when no
// Redis is configured.
type MemoryDeduplicator struct {
	seen *lru.Cache[string, struct{}]
}

var _ domain.Deduplicator = (*MemoryDeduplicator)(nil)

func NewMemoryDeduplicator(size int) (*MemoryDeduplicator, error) {
	if size <= 0 {
		size = DefaultDedupSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create dedup cache: %w", err)
	}
	return &MemoryDeduplicator{seen: cache}, nil
}

// FirstSeen reports true the first time messageID is offered. Empty ids cannot be tracked and
// always count as new.
func (d *MemoryDeduplicator) FirstSeen(_ context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	found, _ := d.seen.ContainsOrAdd(messageID, struct{}{})
	return !found, nil
}
