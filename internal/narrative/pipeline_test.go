package narrative

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/null-channel/twitch-alerts/internal/domain"
)

func newTestPipeline(t *testing.T, in <-chan domain.ReceivedEvent, mutate func(*PipelineConfig)) (*Pipeline, *recordingQueue) {
	t.Helper()
	dedup, err := NewMemoryDeduplicator(16)
	require.NoError(t, err)

	queue := &recordingQueue{}
	cfg := PipelineConfig{
		Generator: TemplateGenerator{},
		Dedup:     dedup,
		Queue:     queue,
		Media: MediaConfig{
			domain.KindFollow: {ImageURL: "https://cdn.example/follow.gif", SoundURL: "https://cdn.example/follow.mp3"},
		},
		Durations: DefaultDurationPolicy,
		Clock:     clockwork.NewFakeClock(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewPipeline(in, cfg), queue
}

func received(id string, ev domain.Event) domain.ReceivedEvent {
	return domain.ReceivedEvent{
		MessageID: id,
		Timestamp: time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC),
		Event:     ev,
	}
}

func TestPipeline_HandleBuildsDisplayEvent(t *testing.T) {
	store := newRecordingStore()
	p, queue := newTestPipeline(t, nil, func(cfg *PipelineConfig) { cfg.Store = store })

	ok := p.Handle(context.Background(), received("msg-1", domain.Follow{UserID: 5, UserName: "alice"}))
	require.True(t, ok)

	events := queue.all()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "msg-1", ev.ID)
	assert.Equal(t, domain.KindFollow, ev.Kind)
	assert.Contains(t, ev.Message, "alice")
	assert.Equal(t, "https://cdn.example/follow.gif", ev.ImageURL)
	assert.Equal(t, "https://cdn.example/follow.mp3", ev.SoundURL)
	assert.Equal(t, DefaultDurationPolicy.For(ev.Message), ev.Duration)
	assert.Equal(t, time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC), ev.ReceivedAt)

	assert.Equal(t, ev.Message, store.records["msg-1"])
}

func TestPipeline_DropsDuplicates(t *testing.T) {
	p, queue := newTestPipeline(t, nil, nil)
	ctx := context.Background()

	assert.True(t, p.Handle(ctx, received("msg-1", domain.Follow{UserName: "alice"})))
	assert.False(t, p.Handle(ctx, received("msg-1", domain.Follow{UserName: "alice"})))
	assert.Len(t, queue.all(), 1)
}

func TestPipeline_DedupFailureFailsOpen(t *testing.T) {
	p, queue := newTestPipeline(t, nil, func(cfg *PipelineConfig) { cfg.Dedup = brokenDedup{} })
	ctx := context.Background()

	assert.True(t, p.Handle(ctx, received("msg-1", domain.Cheer{UserName: "bob", Bits: 10})))
	assert.True(t, p.Handle(ctx, received("msg-1", domain.Cheer{UserName: "bob", Bits: 10})))
	assert.Len(t, queue.all(), 2)
}

func TestPipeline_StoreFailureStillEnqueues(t *testing.T) {
	store := newRecordingStore()
	store.err = errors.New("db down")
	p, queue := newTestPipeline(t, nil, func(cfg *PipelineConfig) { cfg.Store = store })

	assert.True(t, p.Handle(context.Background(), received("msg-1", domain.Follow{UserName: "alice"})))
	assert.Len(t, queue.all(), 1)
}

func TestPipeline_GeneratorFailureDropsEvent(t *testing.T) {
	p, queue := newTestPipeline(t, nil, func(cfg *PipelineConfig) {
		cfg.Generator = &stubGenerator{err: errors.New("nothing works")}
	})

	assert.False(t, p.Handle(context.Background(), received("msg-1", domain.Follow{UserName: "alice"})))
	assert.Empty(t, queue.all())
}

func TestPipeline_FallsBackToTemplate(t *testing.T) {
	p, queue := newTestPipeline(t, nil, func(cfg *PipelineConfig) {
		cfg.Generator = FallbackGenerator{Primary: &stubGenerator{err: errors.New("llm down")}, Fallback: TemplateGenerator{}}
	})

	require.True(t, p.Handle(context.Background(), received("msg-1", domain.Raid{FromBroadcasterUserName: "dave", Viewers: 3})))
	assert.Contains(t, queue.all()[0].Message, "dave")
}

func TestPipeline_MissingIDAndTimestamp(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p, queue := newTestPipeline(t, nil, func(cfg *PipelineConfig) { cfg.Clock = clock })

	require.True(t, p.Handle(context.Background(), domain.ReceivedEvent{Event: domain.Follow{UserName: "alice"}}))
	ev := queue.all()[0]

	_, err := uuid.Parse(ev.ID)
	assert.NoError(t, err)
	assert.Equal(t, clock.Now(), ev.ReceivedAt)
	assert.Empty(t, MediaConfig(nil).For(domain.KindCheer).ImageURL)
}

func TestPipeline_DropsEmptyEvent(t *testing.T) {
	p, queue := newTestPipeline(t, nil, nil)
	assert.False(t, p.Handle(context.Background(), domain.ReceivedEvent{MessageID: "msg-1"}))
	assert.Empty(t, queue.all())
}

func TestPipeline_RunProcessesInOrder(t *testing.T) {
	in := make(chan domain.ReceivedEvent, 3)
	p, queue := newTestPipeline(t, in, nil)

	in <- received("a", domain.Follow{UserName: "alice"})
	in <- received("b", domain.Cheer{UserName: "bob", Bits: 1})
	in <- received("c", domain.Raid{FromBroadcasterUserName: "carol", Viewers: 2})
	close(in)

	err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrInputClosed)

	var ids []string
	for _, ev := range queue.all() {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestPipeline_RunStopsOnCancel(t *testing.T) {
	p, _ := newTestPipeline(t, make(chan domain.ReceivedEvent), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Run(ctx), context.Canceled)
}
