package domain

import (
	"fmt"
	"time"
)

// EventKind identifies an Event variant.
type EventKind string

const (
	KindFollow              EventKind = "follow"
	KindSubscribe           EventKind = "subscribe"
	KindResubscribe         EventKind = "resubscribe"
	KindRaid                EventKind = "raid"
	KindGiftedSubscriptions EventKind = "gifted_subscriptions"
	KindCheer               EventKind = "cheer"
)

// Kinds lists every EventKind in display order.
var Kinds = []EventKind{KindFollow, KindSubscribe, KindResubscribe, KindRaid, KindGiftedSubscriptions, KindCheer}

// Event is a supported channel activity. The set of implementations is closed to this package.
type Event interface {
	Kind() EventKind
	isEvent()
}

// Tier is a subscription tier as reported upstream ("1000", "2000", "3000").
type Tier string

const (
	Tier1     Tier = "1000"
	Tier2     Tier = "2000"
	Tier3     Tier = "3000"
	TierPrime Tier = "prime"
)

// ParseTier maps a raw tier string to a Tier. Unknown values pass through unchanged.
func ParseTier(raw string) Tier {
	switch raw {
	case "1000":
		return Tier1
	case "2000":
		return Tier2
	case "3000":
		return Tier3
	case "prime", "Prime":
		return TierPrime
	default:
		return Tier(raw)
	}
}

// Label returns a human readable tier name.
func (t Tier) Label() string {
	switch t {
	case Tier1:
		return "Tier 1"
	case Tier2:
		return "Tier 2"
	case Tier3:
		return "Tier 3"
	case TierPrime:
		return "Prime"
	default:
		return "Tier " + string(t)
	}
}

type Follow struct {
	UserID     int64     `json:"user_id"`
	UserLogin  string    `json:"user_login"`
	UserName   string    `json:"user_name"`
	FollowedAt time.Time `json:"followed_at"`
}

type Subscribe struct {
	BroadcasterUserID   int64  `json:"broadcaster_user_id"`
	BroadcasterUserName string `json:"broadcaster_user_name"`
	UserID              int64  `json:"user_id"`
	UserLogin           string `json:"user_login"`
	UserName            string `json:"user_name"`
	Tier                Tier   `json:"tier"`
	IsGift              bool   `json:"is_gift"`
}

type Resubscribe struct {
	UserID           int64  `json:"user_id"`
	UserLogin        string `json:"user_login"`
	UserName         string `json:"user_name"`
	Tier             Tier   `json:"tier"`
	Message          string `json:"message,omitempty"`
	CumulativeMonths int    `json:"cumulative_months"`
	StreakMonths     *int   `json:"streak_months,omitempty"`
	DurationMonths   int    `json:"duration_months"`
}

type Raid struct {
	FromBroadcasterUserID    int64  `json:"from_broadcaster_user_id"`
	FromBroadcasterUserLogin string `json:"from_broadcaster_user_login"`
	FromBroadcasterUserName  string `json:"from_broadcaster_user_name"`
	ToBroadcasterUserID      int64  `json:"to_broadcaster_user_id"`
	ToBroadcasterUserLogin   string `json:"to_broadcaster_user_login"`
	ToBroadcasterUserName    string `json:"to_broadcaster_user_name"`
	Viewers                  int    `json:"viewers"`
}

// GiftedSubscriptions is a batch of gifted subs. UserID is zero and the name fields are empty
// when the gifter is anonymous.
type GiftedSubscriptions struct {
	UserID          int64  `json:"user_id,omitempty"`
	UserLogin       string `json:"user_login,omitempty"`
	UserName        string `json:"user_name,omitempty"`
	IsAnonymous     bool   `json:"is_anonymous"`
	Tier            Tier   `json:"tier"`
	Total           int    `json:"total"`
	CumulativeTotal *int   `json:"cumulative_total,omitempty"`
}

type Cheer struct {
	UserID      int64  `json:"user_id,omitempty"`
	UserLogin   string `json:"user_login,omitempty"`
	UserName    string `json:"user_name,omitempty"`
	IsAnonymous bool   `json:"is_anonymous"`
	Bits        int    `json:"bits"`
	Message     string `json:"message,omitempty"`
}

func (Follow) Kind() EventKind              { return KindFollow }
func (Subscribe) Kind() EventKind           { return KindSubscribe }
func (Resubscribe) Kind() EventKind         { return KindResubscribe }
func (Raid) Kind() EventKind                { return KindRaid }
func (GiftedSubscriptions) Kind() EventKind { return KindGiftedSubscriptions }
func (Cheer) Kind() EventKind               { return KindCheer }

func (Follow) isEvent()              {}
func (Subscribe) isEvent()           {}
func (Resubscribe) isEvent()         {}
func (Raid) isEvent()                {}
func (GiftedSubscriptions) isEvent() {}
func (Cheer) isEvent()               {}

const anonymousName = "anonymous"

// Actor returns the display name of whoever triggered e.
func Actor(e Event) (string, error) {
	switch ev := e.(type) {
	case Follow:
		return ev.UserName, nil
	case Subscribe:
		return ev.UserName, nil
	case Resubscribe:
		return ev.UserName, nil
	case Raid:
		return ev.FromBroadcasterUserName, nil
	case GiftedSubscriptions:
		if ev.IsAnonymous || ev.UserName == "" {
			return anonymousName, nil
		}
		return ev.UserName, nil
	case Cheer:
		if ev.IsAnonymous || ev.UserName == "" {
			return anonymousName, nil
		}
		return ev.UserName, nil
	default:
		return "", unknownEvent(e)
	}
}

// UserID returns the upstream id of whoever triggered e; ok is false for anonymous events.
func UserID(e Event) (id int64, ok bool, err error) {
	switch ev := e.(type) {
	case Follow:
		return ev.UserID, true, nil
	case Subscribe:
		return ev.UserID, true, nil
	case Resubscribe:
		return ev.UserID, true, nil
	case Raid:
		return ev.FromBroadcasterUserID, true, nil
	case GiftedSubscriptions:
		return ev.UserID, !ev.IsAnonymous && ev.UserID != 0, nil
	case Cheer:
		return ev.UserID, !ev.IsAnonymous && ev.UserID != 0, nil
	default:
		return 0, false, unknownEvent(e)
	}
}

// Title returns the overlay headline for e.
func Title(e Event) (string, error) {
	switch e.(type) {
	case Follow:
		return "Followed", nil
	case Subscribe:
		return "Subscribed", nil
	case Resubscribe:
		return "Resubscribed", nil
	case Raid:
		return "Raided", nil
	case GiftedSubscriptions:
		return "Gifted Sub!", nil
	case Cheer:
		return "Cheered!", nil
	default:
		return "", unknownEvent(e)
	}
}

// IsSubscription reports whether e is one of the subscription variants.
func IsSubscription(e Event) bool {
	switch e.(type) {
	case Subscribe, Resubscribe, GiftedSubscriptions:
		return true
	default:
		return false
	}
}

func unknownEvent(e Event) error {
	return fmt.Errorf("%w: %T", ErrUnsupportedEventKind, e)
}
