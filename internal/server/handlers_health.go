package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/null-channel/twitch-alerts/internal/platform/version"
	"github.com/null-channel/twitch-alerts/internal/twitch"
)

const readinessProbeTimeout = 5 * time.Second

// HealthCheck is a named readiness check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// PostgresCheck reports the narratives store as unready when it cannot be pinged.
func PostgresCheck(db pinger) HealthCheck {
	return HealthCheck{Name: "postgres", Check: db.Ping}
}

// RedisCheck wraps a go-redis style Ping.
func RedisCheck(ping func(ctx context.Context) error) HealthCheck {
	return HealthCheck{Name: "redis", Check: ping}
}

// IngestionCheck fails unless the EventSub client is streaming notifications.
func IngestionCheck(status IngestionStatus) HealthCheck {
	return HealthCheck{
		Name: "eventsub",
		Check: func(context.Context) error {
			if s := status.State(); s != twitch.StateStreaming {
				return fmt.Errorf("eventsub client is %s", s)
			}
			return nil
		},
	}
}

func (a *admin) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": a.clock.Since(a.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (a *admin) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	for _, hc := range a.checks {
		err := hc.Check(ctx)
		if err == nil {
			continue
		}

		response := map[string]any{
			"status":       "unhealthy",
			"failed_check": hc.Name,
			"error":        err.Error(),
		}
		if err := c.JSON(http.StatusServiceUnavailable, response); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "ready"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
