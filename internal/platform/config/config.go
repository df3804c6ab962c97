package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	AdminPort   string `env:"ADMIN_PORT" default:"8080"`
	OverlayPort string `env:"OVERLAY_PORT" default:"9000"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	TwitchClientID        string `env:"TWITCH_CLIENT_ID"`
	TwitchUserAccessToken string `env:"TWITCH_USER_ACCESS_TOKEN"`
	TwitchBroadcasterID   string `env:"TWITCH_BROADCASTER_ID"`
	TwitchAPIBaseURL      string `env:"TWITCH_API_BASE_URL"`

	EventSubURL              string        `env:"EVENTSUB_URL" default:"wss://eventsub.wss.twitch.tv/ws"`
	EventSubKeepaliveTimeout time.Duration `env:"EVENTSUB_KEEPALIVE_TIMEOUT" default:"30s"`
	EventSubReconnectBackoff time.Duration `env:"EVENTSUB_RECONNECT_BACKOFF" default:"1s"`

	SchedulerPollInterval    time.Duration `env:"SCHEDULER_POLL_INTERVAL" default:"500ms"`
	SchedulerInterEventPause time.Duration `env:"SCHEDULER_INTER_EVENT_PAUSE" default:"1s"`
	RecentHistorySize        int           `env:"RECENT_HISTORY_SIZE" default:"10"`

	DisplayPerWord time.Duration `env:"DISPLAY_PER_WORD" default:"500ms"`
	DisplayMin     time.Duration `env:"DISPLAY_MIN" default:"3s"`
	DisplayMax     time.Duration `env:"DISPLAY_MAX" default:"20s"`

	NarrativeAPIURL    string        `env:"NARRATIVE_API_URL"`
	NarrativeAPIKey    string        `env:"NARRATIVE_API_KEY"`
	NarrativeModel     string        `env:"NARRATIVE_MODEL" default:"gpt-4o-mini"`
	NarrativeTimeout   time.Duration `env:"NARRATIVE_TIMEOUT" default:"15s"`
	NarrativePartyName string        `env:"NARRATIVE_PARTY_NAME" default:"Null"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"1000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"20"`
	ConnectionRatePerIP     float64 `env:"CONNECTION_RATE_PER_IP" default:"5"`
	ConnectionBurstPerIP    int     `env:"CONNECTION_BURST_PER_IP" default:"10"`

	MediaFollowImage      string `env:"ALERT_MEDIA_FOLLOW_IMAGE"`
	MediaFollowSound      string `env:"ALERT_MEDIA_FOLLOW_SOUND"`
	MediaSubscribeImage   string `env:"ALERT_MEDIA_SUBSCRIBE_IMAGE"`
	MediaSubscribeSound   string `env:"ALERT_MEDIA_SUBSCRIBE_SOUND"`
	MediaResubscribeImage string `env:"ALERT_MEDIA_RESUBSCRIBE_IMAGE"`
	MediaResubscribeSound string `env:"ALERT_MEDIA_RESUBSCRIBE_SOUND"`
	MediaRaidImage        string `env:"ALERT_MEDIA_RAID_IMAGE"`
	MediaRaidSound        string `env:"ALERT_MEDIA_RAID_SOUND"`
	MediaGiftImage        string `env:"ALERT_MEDIA_GIFTED_SUBSCRIPTIONS_IMAGE"`
	MediaGiftSound        string `env:"ALERT_MEDIA_GIFTED_SUBSCRIPTIONS_SOUND"`
	MediaCheerImage       string `env:"ALERT_MEDIA_CHEER_IMAGE"`
	MediaCheerSound       string `env:"ALERT_MEDIA_CHEER_SOUND"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"TWITCH_CLIENT_ID", cfg.TwitchClientID},
		{"TWITCH_USER_ACCESS_TOKEN", cfg.TwitchUserAccessToken},
		{"TWITCH_BROADCASTER_ID", cfg.TwitchBroadcasterID},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if _, err := strconv.ParseInt(cfg.TwitchBroadcasterID, 10, 64); err != nil {
		return fmt.Errorf("TWITCH_BROADCASTER_ID must be numeric: %w", err)
	}

	u, err := url.Parse(cfg.EventSubURL)
	if err != nil {
		return fmt.Errorf("EVENTSUB_URL is invalid: %w", err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("EVENTSUB_URL must be a ws:// or wss:// URL, got %q", cfg.EventSubURL)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"EVENTSUB_KEEPALIVE_TIMEOUT", cfg.EventSubKeepaliveTimeout},
		{"EVENTSUB_RECONNECT_BACKOFF", cfg.EventSubReconnectBackoff},
		{"SCHEDULER_POLL_INTERVAL", cfg.SchedulerPollInterval},
		{"DISPLAY_PER_WORD", cfg.DisplayPerWord},
		{"DISPLAY_MIN", cfg.DisplayMin},
		{"DISPLAY_MAX", cfg.DisplayMax},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}
	if cfg.SchedulerInterEventPause < 0 {
		return errors.New("SCHEDULER_INTER_EVENT_PAUSE must not be negative")
	}

	if cfg.DisplayMin > cfg.DisplayMax {
		return fmt.Errorf("DISPLAY_MIN (%s) must not exceed DISPLAY_MAX (%s)", cfg.DisplayMin, cfg.DisplayMax)
	}

	if cfg.RecentHistorySize <= 0 {
		return errors.New("RECENT_HISTORY_SIZE must be positive")
	}

	if cfg.AppEnv == "production" && cfg.DatabaseURL != "" {
		if mode := sslMode(cfg.DatabaseURL); mode == "disable" || mode == "allow" {
			return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
		}
	}

	if cfg.NarrativeAPIURL != "" && cfg.NarrativeAPIKey == "" {
		return errors.New("NARRATIVE_API_KEY is required when NARRATIVE_API_URL is set")
	}

	return nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
