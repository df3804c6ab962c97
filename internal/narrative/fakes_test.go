package narrative

import (
	"context"
	"errors"
	"sync"

	"github.com/null-channel/twitch-alerts/internal/domain"
)

type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (g *stubGenerator) Generate(context.Context, domain.Event) (string, error) {
	g.calls++
	return g.text, g.err
}

type recordingQueue struct {
	mu     sync.Mutex
	events []domain.DisplayEvent
}

func (q *recordingQueue) Enqueue(ev domain.DisplayEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ev)
}

func (q *recordingQueue) all() []domain.DisplayEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.DisplayEvent(nil), q.events...)
}

type recordingStore struct {
	mu      sync.Mutex
	records map[string]string
	err     error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{records: make(map[string]string)}
}

func (s *recordingStore) Record(_ context.Context, received domain.ReceivedEvent, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records[received.MessageID] = text
	return nil
}

func (s *recordingStore) RecentForUser(context.Context, int64, int) ([]string, error) {
	return nil, nil
}

type brokenDedup struct{}

func (brokenDedup) FirstSeen(context.Context, string) (bool, error) {
	return false, errors.New("redis unavailable")
}
