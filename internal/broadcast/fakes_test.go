package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
)

// recordingSender captures every message it accepts together with the fake-clock time.
type recordingSender struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	messages [][]byte
	sentAt   []time.Time
	fail     bool
	closed   bool
	reason   string
}

func newRecordingSender(clock clockwork.Clock) *recordingSender {
	return &recordingSender{clock: clock}
}

func (s *recordingSender) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail || s.closed {
		return errors.New("send failed")
	}
	s.messages = append(s.messages, msg)
	if s.clock != nil {
		s.sentAt = append(s.sentAt, s.clock.Now())
	}
	return nil
}

func (s *recordingSender) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.reason = reason
}

func (s *recordingSender) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *recordingSender) isClosed() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.reason
}

type wireMessage struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	DisplayTime int64  `json:"display_time"`
}

func (s *recordingSender) decoded() []wireMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wireMessage, 0, len(s.messages))
	for _, m := range s.messages {
		var w wireMessage
		_ = json.Unmarshal(m, &w)
		out = append(out, w)
	}
	return out
}

func (s *recordingSender) times() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.sentAt...)
}
