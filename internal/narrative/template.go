package narrative

import (
	"context"

	"github.com/null-channel/twitch-alerts/internal/domain"
)

// TemplateGenerator renders a fixed one-sentence story per event kind. It never calls out and
// only fails for events outside the closed Event union.
type TemplateGenerator struct {
	PartyName string
}

var _ domain.NarrativeGenerator = TemplateGenerator{}

func (g TemplateGenerator) Generate(_ context.Context, ev domain.Event) (string, error) {
	party := g.PartyName
	if party == "" {
		party = DefaultPartyName
	}
	return render(stories, ev, party)
}
