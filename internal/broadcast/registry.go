package broadcast

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/null-channel/twitch-alerts/internal/metrics"
)

// ConnectionID identifies one overlay connection (its remote address).
type ConnectionID string

// Sender is the outbound handle of one connection. Send must not block.
type Sender interface {
	Send(msg []byte) error
	Close(reason string)
}

// Registry maps connection ids to senders behind a single mutex.
type Registry struct {
	mu    sync.Mutex
	conns map[ConnectionID]Sender
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[ConnectionID]Sender)}
}

// Insert registers s under id. A sender previously registered under the same id is closed.
func (r *Registry) Insert(id ConnectionID, s Sender) {
	r.mu.Lock()
	prev, existed := r.conns[id]
	r.conns[id] = s
	r.mu.Unlock()

	if existed && prev != s {
		prev.Close("replaced by a new connection")
	}
}

// Remove deletes id and returns the sender that was registered, or nil.
func (r *Registry) Remove(id ConnectionID) Sender {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.conns[id]
	if !ok {
		return nil
	}
	delete(r.conns, id)
	return s
}

// RemoveSender deletes id only while it still maps to s.
func (r *Registry) RemoveSender(id ConnectionID, s Sender) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.conns[id]; !ok || cur != s {
		return false
	}
	delete(r.conns, id)
	return true
}

// ForEach calls f for every entry inside one critical section. f must not block or call back
// into the registry.
func (r *Registry) ForEach(f func(ConnectionID, Sender)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.conns {
		f(id, s)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []ConnectionID {
	r.mu.Lock()
	ids := make([]ConnectionID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// Broadcast queues msg on every sender and returns how many accepted it. Senders that fail
// are removed and closed after the iteration, outside the lock.
func (r *Registry) Broadcast(msg []byte) int {
	type failure struct {
		id     ConnectionID
		sender Sender
		err    error
	}

	var failed []failure
	delivered := 0
	r.ForEach(func(id ConnectionID, s Sender) {
		if err := s.Send(msg); err != nil {
			failed = append(failed, failure{id: id, sender: s, err: err})
			return
		}
		delivered++
	})

	metrics.BroadcastDeliveriesTotal.WithLabelValues("delivered").Add(float64(delivered))
	if len(failed) == 0 {
		return delivered
	}
	metrics.BroadcastDeliveriesTotal.WithLabelValues("failed").Add(float64(len(failed)))

	for _, f := range failed {
		if r.RemoveSender(f.id, f.sender) {
			metrics.BroadcastClientsEvicted.Inc()
			slog.Warn("Evicting overlay client after failed send", "connection_id", string(f.id), "error", f.err)
		}
		f.sender.Close("send failed")
	}
	return delivered
}

// CloseAll removes every entry and closes its sender with reason. It returns the number closed.
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	senders := make([]Sender, 0, len(r.conns))
	for id, s := range r.conns {
		senders = append(senders, s)
		delete(r.conns, id)
	}
	r.mu.Unlock()

	for _, s := range senders {
		s.Close(reason)
	}
	return len(senders)
}
