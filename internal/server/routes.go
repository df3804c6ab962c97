package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	apperrors "github.com/null-channel/twitch-alerts/internal/errors"
	"github.com/null-channel/twitch-alerts/internal/platform/correlation"
)

const rateLimiterExpiry = 5 * time.Minute

func (a *admin) registerRoutes(e *echo.Echo, apiLimiter echo.MiddlewareFunc) {
	e.GET("/health/live", a.handleLiveness)
	e.GET("/health/ready", a.handleReadiness)
	e.GET("/version", handleVersion)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	events := e.Group("/api/events", apiLimiter)
	events.GET("/pending", a.handlePending)
	events.GET("/queue", a.handleQueue)
	events.GET("/recent", a.handleRecent)
	events.GET("/last-subscriber", a.handleLastSubscriber)
	events.GET("/status", a.handleStatus)
	events.POST("/pause", a.handlePause)
	events.POST("/resume", a.handleResume)
}

func registerOverlayRoutes(e *echo.Echo, acceptor http.Handler, limits *ConnectionLimits) {
	e.GET("/health/live", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/ws", echo.WrapHandler(acceptor), connectionGuard(limits))
}

func useCommonMiddleware(e *echo.Echo) {
	e.Use(correlationMiddleware)
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())
}

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

// newRateLimiter limits requests per client IP. Rejections surface as rate_limited errors.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return apperrors.RateLimitedError("rate limit exceeded").WithContext("ip", identifier)
		},
	})
}
