package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/null-channel/twitch-alerts/internal/metrics"
)

const (
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultInterEventPause = time.Second
)

type SchedulerConfig struct {
	// PollInterval is the recheck delay while paused or idle.
	PollInterval time.Duration
	// InterEventPause separates a clear from the next show.
	InterEventPause time.Duration
}

// Scheduler shows queued events one at a time on every registered overlay.
type Scheduler struct {
	queue    *QueueStore
	registry *Registry
	clock    clockwork.Clock
	cfg      SchedulerConfig
}

func NewScheduler(queue *QueueStore, registry *Registry, clock clockwork.Clock, cfg SchedulerConfig) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.InterEventPause < 0 {
		cfg.InterEventPause = DefaultInterEventPause
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{queue: queue, registry: registry, clock: clock, cfg: cfg}
}

// Run loops until ctx is cancelled: poll while paused or empty, otherwise show the head of the
// queue, hold it for its duration, clear it and pause before the next one.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := s.step(ctx); err != nil {
			return err
		}
	}
}

func (s *Scheduler) step(ctx context.Context) error {
	if !s.queue.Active() {
		return s.sleep(ctx, s.cfg.PollInterval)
	}

	ev, ok := s.queue.Pop()
	if !ok {
		return s.sleep(ctx, s.cfg.PollInterval)
	}

	show, err := encodeShow(ev)
	if err != nil {
		slog.Error("Dropping display event that cannot be rendered", "id", ev.ID, "kind", ev.Kind, "error", err)
		return nil
	}
	clearMsg, err := encodeClear(ev.ID)
	if err != nil {
		slog.Error("Dropping display event that cannot be cleared", "id", ev.ID, "error", err)
		return nil
	}

	delivered := s.registry.Broadcast(show)
	metrics.BroadcastEventsShownTotal.WithLabelValues(string(ev.Kind)).Inc()
	metrics.BroadcastDisplaySeconds.Observe(ev.Duration.Seconds())
	slog.Info("Showing event", "id", ev.ID, "kind", ev.Kind, "duration", ev.Duration, "clients", delivered)

	if err := s.sleep(ctx, ev.Duration); err != nil {
		return err
	}
	s.registry.Broadcast(clearMsg)

	return s.sleep(ctx, s.cfg.InterEventPause)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-s.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
