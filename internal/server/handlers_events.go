package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/null-channel/twitch-alerts/internal/domain"
	apperrors "github.com/null-channel/twitch-alerts/internal/errors"
)

const defaultPendingLimit = 10

type eventView struct {
	ID          string           `json:"id"`
	Kind        domain.EventKind `json:"kind"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	ImageURL    string           `json:"image_url,omitempty"`
	SoundURL    string           `json:"sound_url,omitempty"`
	DisplayTime int64            `json:"display_time"`
	ReceivedAt  time.Time        `json:"received_at"`
	Event       domain.Event     `json:"event"`
}

func newEventView(ev domain.DisplayEvent) eventView {
	title, _ := domain.Title(ev.Event)
	return eventView{
		ID:          ev.ID,
		Kind:        ev.Kind,
		Title:       title,
		Message:     ev.Message,
		ImageURL:    ev.ImageURL,
		SoundURL:    ev.SoundURL,
		DisplayTime: ev.Duration.Milliseconds(),
		ReceivedAt:  ev.ReceivedAt,
		Event:       ev.Event,
	}
}

func newEventViews(events []domain.DisplayEvent) []eventView {
	out := make([]eventView, len(events))
	for i, ev := range events {
		out[i] = newEventView(ev)
	}
	return out
}

type pendingResponse struct {
	Active bool        `json:"active"`
	Total  int         `json:"total"`
	Events []eventView `json:"events"`
}

type statusResponse struct {
	Active         bool   `json:"active"`
	Pending        int    `json:"pending"`
	Connections    int    `json:"connections"`
	IngestionState string `json:"ingestion_state"`
}

func (a *admin) handlePending(c echo.Context) error {
	limit := defaultPendingLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return apperrors.ValidationError("limit must be a positive integer").WithContext("limit", raw)
		}
		limit = n
	}

	resp := pendingResponse{
		Active: a.queue.Active(),
		Total:  a.queue.PendingLen(),
		Events: newEventViews(a.queue.Pending(limit)),
	}
	return writeJSON(c, http.StatusOK, resp)
}

func (a *admin) handleQueue(c echo.Context) error {
	return writeJSON(c, http.StatusOK, newEventViews(a.queue.Pending(0)))
}

func (a *admin) handleRecent(c echo.Context) error {
	return writeJSON(c, http.StatusOK, newEventViews(a.queue.Recent()))
}

func (a *admin) handleLastSubscriber(c echo.Context) error {
	ev, ok := a.queue.LastSubscriber()
	if !ok {
		return apperrors.NotFoundError("no subscriber yet")
	}
	return writeJSON(c, http.StatusOK, newEventView(ev))
}

func (a *admin) handleStatus(c echo.Context) error {
	state := "disabled"
	if a.ingestion != nil {
		state = a.ingestion.State().String()
	}

	resp := statusResponse{
		Active:         a.queue.Active(),
		Pending:        a.queue.PendingLen(),
		Connections:    a.registry.Len(),
		IngestionState: state,
	}
	return writeJSON(c, http.StatusOK, resp)
}

func (a *admin) handlePause(c echo.Context) error {
	return a.setActive(c, false)
}

func (a *admin) handleResume(c echo.Context) error {
	return a.setActive(c, true)
}

func (a *admin) setActive(c echo.Context, active bool) error {
	a.queue.SetActive(active)
	slog.InfoContext(c.Request().Context(), "Event queue toggled", "active", active, "pending", a.queue.PendingLen())
	return writeJSON(c, http.StatusOK, map[string]bool{"active": active})
}

func writeJSON(c echo.Context, status int, v any) error {
	if err := c.JSON(status, v); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
