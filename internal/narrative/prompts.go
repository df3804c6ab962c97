package narrative

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/null-channel/twitch-alerts/internal/domain"
)

const DefaultPartyName = "Null"

const personaFormat = "You are D&DGPT, when answering any questions, you always answer with a short epic story " +
	"as a dungeons and dragons dungeon master in 27 words or less. The adventuring party is called the %s party."

// promptData is the view of an event that prompt and story templates render from.
type promptData struct {
	Actor   string
	Party   string
	Tier    string
	Months  int
	Viewers int
	Total   int
	Bits    int
	Message string
}

var chatPrompts = mustParse("prompt", map[domain.EventKind]string{
	domain.KindFollow:              "tell me an epic story about how {{.Actor}} joined forces with the {{.Party}} party.",
	domain.KindSubscribe:           "tell me an epic story about how {{.Actor}} supported the {{.Party}} party with {{.Tier}} powers.",
	domain.KindResubscribe:         "tell me an epic story about how {{.Actor}} has stood with the {{.Party}} party for {{.Months}} months.",
	domain.KindRaid:                "tell me an epic story about how {{.Viewers}} people from {{.Actor}}'s party joined forces with the {{.Party}} party for a joint quest.",
	domain.KindGiftedSubscriptions: "tell me an epic story about how {{.Actor}} gifted new {{.Tier}} powers to {{.Total}} {{.Party}} party members.",
	domain.KindCheer:               "tell me an epic story about how {{.Actor}} tossed {{.Bits}} gold coins into the {{.Party}} party's treasure chest.",
})

var stories = mustParse("story", map[domain.EventKind]string{
	domain.KindFollow:              "{{.Actor}} steps out of the tavern shadows and swears to fight alongside the {{.Party}} party.",
	domain.KindSubscribe:           "{{.Actor}} pledges {{.Tier}} support to the {{.Party}} party, and the war chest grows heavier.",
	domain.KindResubscribe:         "{{.Actor}} returns for month {{.Months}}, a battle-worn veteran of the {{.Party}} party's long campaign.",
	domain.KindRaid:                "{{.Actor}} leads {{.Viewers}} adventurers through the gates to join the {{.Party}} party on a joint quest.",
	domain.KindGiftedSubscriptions: "{{.Actor}} bestows {{.Tier}} powers upon {{.Total}} members of the {{.Party}} party.",
	domain.KindCheer:               "{{.Actor}} tosses {{.Bits}} glittering bits into the {{.Party}} party's coffers.",
})

func mustParse(prefix string, texts map[domain.EventKind]string) map[domain.EventKind]*template.Template {
	out := make(map[domain.EventKind]*template.Template, len(texts))
	for kind, text := range texts {
		out[kind] = template.Must(template.New(prefix + "." + string(kind)).Option("missingkey=error").Parse(text))
	}
	return out
}

func persona(party string) string {
	return fmt.Sprintf(personaFormat, party)
}

func newPromptData(ev domain.Event, party string) (promptData, error) {
	actor, err := domain.Actor(ev)
	if err != nil {
		return promptData{}, err
	}
	d := promptData{Actor: actor, Party: party}

	switch e := ev.(type) {
	case domain.Subscribe:
		d.Tier = e.Tier.Label()
	case domain.Resubscribe:
		d.Tier = e.Tier.Label()
		d.Months = e.CumulativeMonths
		d.Message = e.Message
	case domain.Raid:
		d.Viewers = e.Viewers
	case domain.GiftedSubscriptions:
		d.Tier = e.Tier.Label()
		d.Total = e.Total
	case domain.Cheer:
		d.Bits = e.Bits
		d.Message = e.Message
	}
	return d, nil
}

func render(set map[domain.EventKind]*template.Template, ev domain.Event, party string) (string, error) {
	data, err := newPromptData(ev, party)
	if err != nil {
		return "", err
	}
	tmpl, ok := set[ev.Kind()]
	if !ok {
		return "", fmt.Errorf("%w: no template for %q", domain.ErrUnsupportedEventKind, ev.Kind())
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}
