package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/null-channel/twitch-alerts/internal/broadcast"
	"github.com/null-channel/twitch-alerts/internal/database"
	"github.com/null-channel/twitch-alerts/internal/domain"
	"github.com/null-channel/twitch-alerts/internal/metrics"
	"github.com/null-channel/twitch-alerts/internal/narrative"
	"github.com/null-channel/twitch-alerts/internal/platform/config"
	"github.com/null-channel/twitch-alerts/internal/platform/logging"
	"github.com/null-channel/twitch-alerts/internal/platform/version"
	"github.com/null-channel/twitch-alerts/internal/redis"
	"github.com/null-channel/twitch-alerts/internal/server"
	"github.com/null-channel/twitch-alerts/internal/supervisor"
	"github.com/null-channel/twitch-alerts/internal/twitch"
)

const (
	connectTimeout       = 10 * time.Second
	eventBufferSize      = 64
	overlayCloseTimeout  = 5 * time.Second
	httpShutdownTimeout  = 10 * time.Second
	treeShutdownDeadline = 20 * time.Second
	shutdownReason       = "server shutting down"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(ctx context.Context, cfg *config.Config) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		slog.Info("DATABASE_URL not set, narratives will not be persisted")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, using in-memory message deduplication")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func mediaConfig(cfg *config.Config) narrative.MediaConfig {
	return narrative.MediaConfig{
		domain.KindFollow:              {ImageURL: cfg.MediaFollowImage, SoundURL: cfg.MediaFollowSound},
		domain.KindSubscribe:           {ImageURL: cfg.MediaSubscribeImage, SoundURL: cfg.MediaSubscribeSound},
		domain.KindResubscribe:         {ImageURL: cfg.MediaResubscribeImage, SoundURL: cfg.MediaResubscribeSound},
		domain.KindRaid:                {ImageURL: cfg.MediaRaidImage, SoundURL: cfg.MediaRaidSound},
		domain.KindGiftedSubscriptions: {ImageURL: cfg.MediaGiftImage, SoundURL: cfg.MediaGiftSound},
		domain.KindCheer:               {ImageURL: cfg.MediaCheerImage, SoundURL: cfg.MediaCheerSound},
	}
}

func setupGenerator(cfg *config.Config, history narrative.HistoryReader) domain.NarrativeGenerator {
	fallback := narrative.TemplateGenerator{PartyName: cfg.NarrativePartyName}
	if cfg.NarrativeAPIURL == "" {
		return fallback
	}

	chat, err := narrative.NewChatGenerator(narrative.ChatConfig{
		BaseURL:   cfg.NarrativeAPIURL,
		APIKey:    cfg.NarrativeAPIKey,
		Model:     cfg.NarrativeModel,
		PartyName: cfg.NarrativePartyName,
		Timeout:   cfg.NarrativeTimeout,
		History:   history,
	})
	if err != nil {
		slog.Error("Failed to create narrative generator", "error", err)
		os.Exit(1)
	}
	return narrative.FallbackGenerator{Primary: chat, Fallback: fallback}
}

func main() {
	clock := clockwork.NewRealClock()
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.GoVersion).Set(1)
	slog.Info("Application starting", "env", cfg.AppEnv, "version", info.String(),
		"admin_port", cfg.AdminPort, "overlay_port", cfg.OverlayPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var checks []server.HealthCheck

	pipelineCfg := narrative.PipelineConfig{
		Media: mediaConfig(cfg),
		Durations: narrative.DurationPolicy{
			PerWord: cfg.DisplayPerWord,
			Min:     cfg.DisplayMin,
			Max:     cfg.DisplayMax,
		},
		Clock: clock,
	}

	var history narrative.HistoryReader
	if pool := setupDB(ctx, cfg); pool != nil {
		defer pool.Close()
		repo := database.NewNarrativeRepo(pool)
		pipelineCfg.Store = repo
		history = repo
		checks = append(checks, server.PostgresCheck(repo))
	}

	if rdb := setupRedis(ctx, cfg); rdb != nil {
		defer func() { _ = rdb.Close() }()
		pipelineCfg.Dedup = redis.NewDeduplicator(rdb, redis.DefaultDedupTTL)
		checks = append(checks, server.RedisCheck(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }))
	} else {
		dedup, err := narrative.NewMemoryDeduplicator(narrative.DefaultDedupSize)
		if err != nil {
			slog.Error("Failed to create deduplicator", "error", err)
			os.Exit(1)
		}
		pipelineCfg.Dedup = dedup
	}
	pipelineCfg.Generator = setupGenerator(cfg, history)

	queue := broadcast.NewQueueStore(cfg.RecentHistorySize)
	registry := broadcast.NewRegistry()
	pipelineCfg.Queue = queue

	subscriber, err := twitch.NewHelixSubscriber(twitch.HelixConfig{
		ClientID:        cfg.TwitchClientID,
		UserAccessToken: cfg.TwitchUserAccessToken,
		BroadcasterID:   cfg.TwitchBroadcasterID,
		APIBaseURL:      cfg.TwitchAPIBaseURL,
	})
	if err != nil {
		slog.Error("Failed to create EventSub subscriber", "error", err)
		os.Exit(1)
	}

	events := make(chan domain.ReceivedEvent, eventBufferSize)
	client, err := twitch.NewClient(twitch.ClientConfig{
		ConnectURL:       cfg.EventSubURL,
		KeepaliveTimeout: cfg.EventSubKeepaliveTimeout,
		ReconnectBackoff: cfg.EventSubReconnectBackoff,
	}, subscriber, events, clock)
	if err != nil {
		slog.Error("Failed to create EventSub client", "error", err)
		os.Exit(1)
	}
	checks = append(checks, server.IngestionCheck(client))

	pipeline := narrative.NewPipeline(events, pipelineCfg)
	scheduler := broadcast.NewScheduler(queue, registry, clock, broadcast.SchedulerConfig{
		PollInterval:    cfg.SchedulerPollInterval,
		InterEventPause: cfg.SchedulerInterEventPause,
	})
	acceptor := broadcast.NewAcceptor(registry, clock)

	adminSrv := server.NewAdminServer(server.AdminConfig{
		Port:         cfg.AdminPort,
		Queue:        queue,
		Registry:     registry,
		Ingestion:    client,
		HealthChecks: checks,
		Clock:        clock,
	})
	overlaySrv := server.NewOverlayServer(server.OverlayConfig{
		Port:     cfg.OverlayPort,
		Acceptor: acceptor,
		Limits: server.NewConnectionLimits(server.ConnectionLimitsConfig{
			MaxConnections: cfg.MaxWebSocketConnections,
			MaxPerIP:       cfg.MaxConnectionsPerIP,
			RatePerSecond:  cfg.ConnectionRatePerIP,
			Burst:          cfg.ConnectionBurstPerIP,
			Clock:          clock,
		}),
	})

	tree := supervisor.NewTree(logging.Logger, supervisor.DefaultTreeConfig())
	tree.AddIngestion(supervisor.NewRunnerService("eventsub-client", client))
	tree.AddIngestion(supervisor.NewRunnerService("narrative-pipeline", pipeline, narrative.ErrInputClosed))
	tree.AddDelivery(supervisor.NewRunnerService("scheduler", scheduler))
	tree.AddDelivery(supervisor.NewHTTPService("overlay-server", overlaySrv, httpShutdownTimeout))
	tree.AddAPI(supervisor.NewHTTPService("admin-server", adminSrv, httpShutdownTimeout))

	treeDone := tree.ServeBackground(ctx)

	<-ctx.Done()
	slog.Info("Shutdown signal received, cleaning up")

	// Hijacked overlay sockets outlive the HTTP server shutdown, so close them explicitly.
	if err := acceptor.Shutdown(shutdownReason, overlayCloseTimeout); err != nil {
		slog.Warn("Overlay clients did not close in time", "error", err)
	}

	select {
	case err := <-treeDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Supervisor stopped with error", "error", err)
		}
	case <-time.After(treeShutdownDeadline):
		report, _ := tree.UnstoppedServiceReport()
		slog.Error("Supervisor did not stop in time", "unstopped", len(report))
	}

	slog.Info("Shutdown complete")
}
