package server

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	apperrors "github.com/null-channel/twitch-alerts/internal/errors"
)

// connectionGuard admits an overlay upgrade only when every connection limit has room, and
// holds the reservation until the handler returns.
func connectionGuard(limits *ConnectionLimits) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			ok, reason := limits.Acquire(ip)
			if !ok {
				slog.WarnContext(c.Request().Context(), "Overlay connection rejected", "ip", ip, "reason", reason)
				return apperrors.UnavailableError("overlay connection rejected: "+string(reason), nil).
					WithContext("reason", string(reason))
			}
			defer limits.Release(ip)

			return next(c)
		}
	}
}
