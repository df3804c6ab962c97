package twitch

import (
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/null-channel/twitch-alerts/internal/domain"
)

var errEmptyEvent = errors.New("notification has no event body")

// Upstream event bodies. Ids arrive as numeric strings and nullable fields as pointers.

type followWire struct {
	UserID     string    `json:"user_id"`
	UserLogin  string    `json:"user_login"`
	UserName   string    `json:"user_name"`
	FollowedAt time.Time `json:"followed_at"`
}

type subscribeWire struct {
	BroadcasterUserID   string `json:"broadcaster_user_id"`
	BroadcasterUserName string `json:"broadcaster_user_name"`
	UserID              string `json:"user_id"`
	UserLogin           string `json:"user_login"`
	UserName            string `json:"user_name"`
	Tier                string `json:"tier"`
	IsGift              bool   `json:"is_gift"`
}

type resubscribeWire struct {
	UserID    string `json:"user_id"`
	UserLogin string `json:"user_login"`
	UserName  string `json:"user_name"`
	Tier      string `json:"tier"`
	Message   struct {
		Text string `json:"text"`
	} `json:"message"`
	CumulativeMonths int  `json:"cumulative_months"`
	StreakMonths     *int `json:"streak_months"`
	DurationMonths   int  `json:"duration_months"`
}

type raidWire struct {
	FromBroadcasterUserID    string `json:"from_broadcaster_user_id"`
	FromBroadcasterUserLogin string `json:"from_broadcaster_user_login"`
	FromBroadcasterUserName  string `json:"from_broadcaster_user_name"`
	ToBroadcasterUserID      string `json:"to_broadcaster_user_id"`
	ToBroadcasterUserLogin   string `json:"to_broadcaster_user_login"`
	ToBroadcasterUserName    string `json:"to_broadcaster_user_name"`
	Viewers                  int    `json:"viewers"`
}

type giftWire struct {
	UserID          *string `json:"user_id"`
	UserLogin       *string `json:"user_login"`
	UserName        *string `json:"user_name"`
	Total           int     `json:"total"`
	Tier            string  `json:"tier"`
	CumulativeTotal *int    `json:"cumulative_total"`
	IsAnonymous     bool    `json:"is_anonymous"`
}

type cheerWire struct {
	IsAnonymous bool    `json:"is_anonymous"`
	UserID      *string `json:"user_id"`
	UserLogin   *string `json:"user_login"`
	UserName    *string `json:"user_name"`
	Message     string  `json:"message"`
	Bits        int     `json:"bits"`
}

// Decode maps one notification into a domain event. It performs no I/O and holds no state.
// Unknown subscription types or versions yield *domain.UnsupportedEventKindError, malformed
// bodies and non-numeric ids yield *domain.FieldParseError.
func Decode(n Notification) (domain.Event, error) {
	sub, ok := lookupSubscription(n.SubscriptionType, n.SubscriptionVersion)
	if !ok {
		return nil, &domain.UnsupportedEventKindError{Type: n.SubscriptionType, Version: n.SubscriptionVersion}
	}

	switch sub.Kind {
	case domain.KindFollow:
		return decodeFollow(n.Event)
	case domain.KindSubscribe:
		return decodeSubscribe(n.Event)
	case domain.KindResubscribe:
		return decodeResubscribe(n.Event)
	case domain.KindRaid:
		return decodeRaid(n.Event)
	case domain.KindGiftedSubscriptions:
		return decodeGift(n.Event)
	case domain.KindCheer:
		return decodeCheer(n.Event)
	default:
		return nil, &domain.UnsupportedEventKindError{Type: n.SubscriptionType, Version: n.SubscriptionVersion}
	}
}

func unmarshalEvent(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return &domain.FieldParseError{Field: "event", Value: "", Err: errEmptyEvent}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &domain.FieldParseError{Field: "event", Value: truncate(string(raw), 64), Err: err}
	}
	return nil
}

func decodeFollow(raw json.RawMessage) (domain.Event, error) {
	var w followWire
	if err := unmarshalEvent(raw, &w); err != nil {
		return nil, err
	}
	id, err := parseID("user_id", w.UserID)
	if err != nil {
		return nil, err
	}
	return domain.Follow{
		UserID:     id,
		UserLogin:  w.UserLogin,
		UserName:   w.UserName,
		FollowedAt: w.FollowedAt,
	}, nil
}

func decodeSubscribe(raw json.RawMessage) (domain.Event, error) {
	var w subscribeWire
	if err := unmarshalEvent(raw, &w); err != nil {
		return nil, err
	}
	broadcasterID, err := parseID("broadcaster_user_id", w.BroadcasterUserID)
	if err != nil {
		return nil, err
	}
	userID, err := parseID("user_id", w.UserID)
	if err != nil {
		return nil, err
	}
	return domain.Subscribe{
		BroadcasterUserID:   broadcasterID,
		BroadcasterUserName: w.BroadcasterUserName,
		UserID:              userID,
		UserLogin:           w.UserLogin,
		UserName:            w.UserName,
		Tier:                domain.ParseTier(w.Tier),
		IsGift:              w.IsGift,
	}, nil
}

func decodeResubscribe(raw json.RawMessage) (domain.Event, error) {
	var w resubscribeWire
	if err := unmarshalEvent(raw, &w); err != nil {
		return nil, err
	}
	userID, err := parseID("user_id", w.UserID)
	if err != nil {
		return nil, err
	}
	return domain.Resubscribe{
		UserID:           userID,
		UserLogin:        w.UserLogin,
		UserName:         w.UserName,
		Tier:             domain.ParseTier(w.Tier),
		Message:          w.Message.Text,
		CumulativeMonths: w.CumulativeMonths,
		StreakMonths:     w.StreakMonths,
		DurationMonths:   w.DurationMonths,
	}, nil
}

func decodeRaid(raw json.RawMessage) (domain.Event, error) {
	var w raidWire
	if err := unmarshalEvent(raw, &w); err != nil {
		return nil, err
	}
	fromID, err := parseID("from_broadcaster_user_id", w.FromBroadcasterUserID)
	if err != nil {
		return nil, err
	}
	toID, err := parseID("to_broadcaster_user_id", w.ToBroadcasterUserID)
	if err != nil {
		return nil, err
	}
	return domain.Raid{
		FromBroadcasterUserID:    fromID,
		FromBroadcasterUserLogin: w.FromBroadcasterUserLogin,
		FromBroadcasterUserName:  w.FromBroadcasterUserName,
		ToBroadcasterUserID:      toID,
		ToBroadcasterUserLogin:   w.ToBroadcasterUserLogin,
		ToBroadcasterUserName:    w.ToBroadcasterUserName,
		Viewers:                  w.Viewers,
	}, nil
}

func decodeGift(raw json.RawMessage) (domain.Event, error) {
	var w giftWire
	if err := unmarshalEvent(raw, &w); err != nil {
		return nil, err
	}
	userID, err := parseOptionalID("user_id", w.UserID)
	if err != nil {
		return nil, err
	}
	return domain.GiftedSubscriptions{
		UserID:          userID,
		UserLogin:       deref(w.UserLogin),
		UserName:        deref(w.UserName),
		IsAnonymous:     w.IsAnonymous,
		Tier:            domain.ParseTier(w.Tier),
		Total:           w.Total,
		CumulativeTotal: w.CumulativeTotal,
	}, nil
}

func decodeCheer(raw json.RawMessage) (domain.Event, error) {
	var w cheerWire
	if err := unmarshalEvent(raw, &w); err != nil {
		return nil, err
	}
	userID, err := parseOptionalID("user_id", w.UserID)
	if err != nil {
		return nil, err
	}
	return domain.Cheer{
		UserID:      userID,
		UserLogin:   deref(w.UserLogin),
		UserName:    deref(w.UserName),
		IsAnonymous: w.IsAnonymous,
		Bits:        w.Bits,
		Message:     w.Message,
	}, nil
}

func parseID(field, value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, &domain.FieldParseError{Field: field, Value: value, Err: err}
	}
	return id, nil
}

// parseOptionalID treats a null or empty id as absent (anonymous gifter or cheerer).
func parseOptionalID(field string, value *string) (int64, error) {
	if value == nil || *value == "" {
		return 0, nil
	}
	return parseID(field, *value)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
