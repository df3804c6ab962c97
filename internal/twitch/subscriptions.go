package twitch

import "github.com/null-channel/twitch-alerts/internal/domain"

// Subscription is one EventSub subscription type this service listens to.
type Subscription struct {
	Type    string
	Version string
	Kind    domain.EventKind
}

// Monitored lists every subscription the client registers and the decoder accepts.
var Monitored = []Subscription{
	{Type: "channel.follow", Version: "2", Kind: domain.KindFollow},
	{Type: "channel.subscribe", Version: "1", Kind: domain.KindSubscribe},
	{Type: "channel.subscription.message", Version: "1", Kind: domain.KindResubscribe},
	{Type: "channel.subscription.gift", Version: "1", Kind: domain.KindGiftedSubscriptions},
	{Type: "channel.cheer", Version: "1", Kind: domain.KindCheer},
	{Type: "channel.raid", Version: "1", Kind: domain.KindRaid},
}

func lookupSubscription(typ, version string) (Subscription, bool) {
	for _, s := range Monitored {
		if s.Type == typ && s.Version == version {
			return s, true
		}
	}
	return Subscription{}, false
}

func isMonitoredType(typ string) bool {
	for _, s := range Monitored {
		if s.Type == typ {
			return true
		}
	}
	return false
}
