package narrative

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/null-channel/twitch-alerts/internal/domain"
	"github.com/null-channel/twitch-alerts/internal/metrics"
)

// FallbackGenerator uses Primary and falls back to Fallback when it fails.
type FallbackGenerator struct {
	Primary  domain.NarrativeGenerator
	Fallback domain.NarrativeGenerator
}

var _ domain.NarrativeGenerator = FallbackGenerator{}

func (g FallbackGenerator) Generate(ctx context.Context, ev domain.Event) (string, error) {
	text, err := timed(ctx, "primary", g.Primary, ev)
	if err == nil {
		return text, nil
	}
	slog.WarnContext(ctx, "Narrative generation failed, using fallback", "error", err)

	text, fbErr := timed(ctx, "fallback", g.Fallback, ev)
	if fbErr != nil {
		return "", errors.Join(err, fbErr)
	}
	return text, nil
}

func timed(ctx context.Context, name string, gen domain.NarrativeGenerator, ev domain.Event) (string, error) {
	start := time.Now()
	text, err := gen.Generate(ctx, ev)
	metrics.NarrativeGenerationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.NarrativeGeneratedTotal.WithLabelValues(name, result).Inc()
	return text, err
}
