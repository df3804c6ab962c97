package broadcast

import (
	"sync"

	"github.com/null-channel/twitch-alerts/internal/domain"
	"github.com/null-channel/twitch-alerts/internal/metrics"
)

const DefaultHistorySize = 10

// QueueStore holds the pending display queue, the recent-history window and the pause flag.
// Every method takes the lock for its whole body and never blocks while holding it.
type QueueStore struct {
	mu          sync.Mutex
	pending     []domain.DisplayEvent
	recent      []domain.DisplayEvent
	historySize int
	active      bool
	lastSub     *domain.DisplayEvent
}

// NewQueueStore returns an active store keeping the last historySize events
// (DefaultHistorySize when historySize <= 0).
func NewQueueStore(historySize int) *QueueStore {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	metrics.BroadcastActive.Set(1)
	return &QueueStore{
		historySize: historySize,
		active:      true,
		recent:      make([]domain.DisplayEvent, 0, historySize),
	}
}

// Enqueue appends ev to pending and to the recent history regardless of the pause flag.
func (q *QueueStore) Enqueue(ev domain.DisplayEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, ev)

	if len(q.recent) == q.historySize {
		copy(q.recent, q.recent[1:])
		q.recent = q.recent[:q.historySize-1]
	}
	q.recent = append(q.recent, ev)

	if domain.IsSubscription(ev.Event) {
		last := ev
		q.lastSub = &last
	}

	metrics.BroadcastQueueDepth.Set(float64(len(q.pending)))
}

// Pop removes and returns the head of pending.
func (q *QueueStore) Pop() (domain.DisplayEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return domain.DisplayEvent{}, false
	}
	ev := q.pending[0]
	q.pending[0] = domain.DisplayEvent{}
	q.pending = q.pending[1:]
	if len(q.pending) == 0 {
		q.pending = nil
	}

	metrics.BroadcastQueueDepth.Set(float64(len(q.pending)))
	return ev, true
}

func (q *QueueStore) SetActive(active bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.active = active
	if active {
		metrics.BroadcastActive.Set(1)
	} else {
		metrics.BroadcastActive.Set(0)
	}
}

func (q *QueueStore) Active() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Pending returns up to limit pending events in display order; limit <= 0 returns all.
func (q *QueueStore) Pending(limit int) []domain.DisplayEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pending)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.DisplayEvent, n)
	copy(out, q.pending[:n])
	return out
}

func (q *QueueStore) PendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Recent returns the last received events, oldest first.
func (q *QueueStore) Recent() []domain.DisplayEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.DisplayEvent, len(q.recent))
	copy(out, q.recent)
	return out
}

// LastSubscriber returns the most recently received subscription event of any kind.
func (q *QueueStore) LastSubscriber() (domain.DisplayEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lastSub == nil {
		return domain.DisplayEvent{}, false
	}
	return *q.lastSub, true
}
