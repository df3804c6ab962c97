package narrative

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/null-channel/twitch-alerts/internal/domain"
	"github.com/null-channel/twitch-alerts/internal/metrics"
	"github.com/null-channel/twitch-alerts/internal/platform/correlation"
)

var ErrInputClosed = errors.New("event input closed")

// Queue accepts display events for the broadcast scheduler.
type Queue interface {
	Enqueue(ev domain.DisplayEvent)
}

type PipelineConfig struct {
	Generator domain.NarrativeGenerator
	// Store defaults to DiscardStore.
	Store domain.NarrativeStore
	// Dedup is optional; without it every event is processed.
	Dedup     domain.Deduplicator
	Queue     Queue
	Media     MediaConfig
	Durations DurationPolicy
	Clock     clockwork.Clock
}

// Pipeline consumes received events in order and feeds the display queue.
type Pipeline struct {
	in        <-chan domain.ReceivedEvent
	generator domain.NarrativeGenerator
	store     domain.NarrativeStore
	dedup     domain.Deduplicator
	queue     Queue
	media     MediaConfig
	durations DurationPolicy
	clock     clockwork.Clock
}

func NewPipeline(in <-chan domain.ReceivedEvent, cfg PipelineConfig) *Pipeline {
	if cfg.Generator == nil {
		cfg.Generator = TemplateGenerator{}
	}
	if cfg.Store == nil {
		cfg.Store = DiscardStore{}
	}
	if cfg.Durations == (DurationPolicy{}) {
		cfg.Durations = DefaultDurationPolicy
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		in:        in,
		generator: cfg.Generator,
		store:     cfg.Store,
		dedup:     cfg.Dedup,
		queue:     cfg.Queue,
		media:     cfg.Media,
		durations: cfg.Durations,
		clock:     cfg.Clock,
	}
}

// Run handles events until ctx is cancelled or the input channel closes.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case received, ok := <-p.in:
			if !ok {
				return ErrInputClosed
			}
			p.Handle(ctx, received)
		}
	}
}

// Handle runs one event through dedup, generation, persistence and enqueueing. It reports
// whether the event was enqueued.
func (p *Pipeline) Handle(ctx context.Context, received domain.ReceivedEvent) bool {
	ctx = correlation.WithID(ctx, correlation.FromMessageID(received.MessageID))

	if received.Event == nil {
		slog.WarnContext(ctx, "Dropping received event without payload", "message_id", received.MessageID)
		return false
	}
	kind := received.Event.Kind()

	if !p.firstSeen(ctx, received.MessageID) {
		metrics.NarrativeDuplicatesTotal.Inc()
		slog.InfoContext(ctx, "Dropping duplicate notification", "message_id", received.MessageID, "kind", kind)
		return false
	}

	text, err := p.generator.Generate(ctx, received.Event)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to generate narrative", "kind", kind, "error", err)
		return false
	}

	if err := p.store.Record(ctx, received, text); err != nil {
		metrics.NarrativeStoreErrorsTotal.WithLabelValues("record").Inc()
		slog.ErrorContext(ctx, "Failed to record narrative", "kind", kind, "error", err)
	}

	id := received.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	receivedAt := received.Timestamp
	if receivedAt.IsZero() {
		receivedAt = p.clock.Now()
	}
	media := p.media.For(kind)

	ev := domain.DisplayEvent{
		ID:         id,
		Kind:       kind,
		Event:      received.Event,
		Message:    text,
		ImageURL:   media.ImageURL,
		SoundURL:   media.SoundURL,
		Duration:   p.durations.For(text),
		ReceivedAt: receivedAt,
	}
	p.queue.Enqueue(ev)
	slog.InfoContext(ctx, "Queued display event", "id", ev.ID, "kind", kind, "duration", ev.Duration)
	return true
}

// firstSeen fails open: a dedup backend error lets the event through.
func (p *Pipeline) firstSeen(ctx context.Context, messageID string) bool {
	if p.dedup == nil {
		return true
	}
	first, err := p.dedup.FirstSeen(ctx, messageID)
	if err != nil {
		slog.WarnContext(ctx, "Deduplication unavailable, processing event", "message_id", messageID, "error", err)
		return true
	}
	return first
}
