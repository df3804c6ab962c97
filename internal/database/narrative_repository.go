package database

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/null-channel/twitch-alerts/internal/domain"
)

// Narrative is a stored alert text together with the event it was generated for.
type Narrative struct {
	MessageID  string           `json:"message_id"`
	Kind       domain.EventKind `json:"kind"`
	UserID     *int64           `json:"user_id,omitempty"`
	UserName   string           `json:"user_name"`
	Message    string           `json:"message"`
	ReceivedAt time.Time        `json:"received_at"`
	CreatedAt  time.Time        `json:"created_at"`
}

type NarrativeRepo struct {
	pool *pgxpool.Pool
}

var _ domain.NarrativeStore = (*NarrativeRepo)(nil)

func NewNarrativeRepo(pool *pgxpool.Pool) *NarrativeRepo {
	return &NarrativeRepo{pool: pool}
}

// Record stores text for received. A message id that was already recorded is left untouched.
func (r *NarrativeRepo) Record(ctx context.Context, received domain.ReceivedEvent, text string) error {
	ev := received.Event
	if ev == nil {
		return fmt.Errorf("failed to record narrative %s: %w", received.MessageID, domain.ErrUnsupportedEventKind)
	}

	userName, err := domain.Actor(ev)
	if err != nil {
		return fmt.Errorf("failed to record narrative %s: %w", received.MessageID, err)
	}
	var userID *int64
	if id, ok, _ := domain.UserID(ev); ok {
		userID = &id
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	receivedAt := received.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO narratives (message_id, kind, user_id, user_name, message, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO NOTHING
	`, received.MessageID, string(ev.Kind()), userID, userName, text, payload, receivedAt)
	if err != nil {
		return fmt.Errorf("failed to insert narrative %s: %w", received.MessageID, err)
	}
	return nil
}

// RecentForUser returns up to limit narrative texts for userID, newest first.
func (r *NarrativeRepo) RecentForUser(ctx context.Context, userID int64, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT message FROM narratives
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query narratives for user %d: %w", userID, err)
	}

	messages, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read narratives for user %d: %w", userID, err)
	}
	return messages, nil
}

// Recent returns up to limit narratives across all users, newest first.
func (r *NarrativeRepo) Recent(ctx context.Context, limit int) ([]Narrative, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT message_id, kind, user_id, user_name, message, received_at, created_at
		FROM narratives
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent narratives: %w", err)
	}

	narratives, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Narrative, error) {
		var n Narrative
		var kind string
		err := row.Scan(&n.MessageID, &kind, &n.UserID, &n.UserName, &n.Message, &n.ReceivedAt, &n.CreatedAt)
		n.Kind = domain.EventKind(kind)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read recent narratives: %w", err)
	}
	return narratives, nil
}

// Ping checks connectivity and refreshes the pool gauges.
func (r *NarrativeRepo) Ping(ctx context.Context) error {
	ObservePool(r.pool)
	return r.pool.Ping(ctx)
}
