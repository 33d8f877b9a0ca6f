package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/services"
	httphandlers "vinyl/internal/handlers/http"
	"vinyl/internal/infrastructure/audio"
	backupinfra "vinyl/internal/infrastructure/backup"
	"vinyl/internal/infrastructure/distributed"
	"vinyl/internal/infrastructure/ingest"
	"vinyl/internal/infrastructure/middleware"
	"vinyl/internal/infrastructure/monitoring"
	repositories "vinyl/internal/infrastructure/repositories"
	notify "vinyl/internal/infrastructure/signal"
	"vinyl/pkg/backup"
	"vinyl/pkg/bus"
	"vinyl/pkg/circuitbreaker"
	"vinyl/pkg/config"
	"vinyl/pkg/logger"
	"vinyl/pkg/retry"
	"vinyl/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// loadConfig uses VINYL_CONFIG or the first config file found; with none
// present the defaults plus env overrides apply.
func loadConfig() (*config.Config, string, error) {
	candidates := []string{
		"configs/config.yaml",
		"config.yaml",
		"/etc/vinyl/config.yaml",
	}
	if path := os.Getenv("VINYL_CONFIG"); path != "" {
		candidates = []string{path}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			cfg, err := config.Load(path)
			return cfg, path, err
		}
	}
	cfg, err := config.Load("")
	return cfg, "", err
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return nil
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func main() {
	cfg, configPath, err := loadConfig()
	if err != nil {
		zap.NewExample().Sugar().Fatalw("failed to load configuration", "path", configPath, "error", err)
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	log.Infow("configuration loaded", "path", configPath)

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "vinyl",
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		Environment: os.Getenv("VINYL_ENV"),
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing disabled", "error", err)
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to open room database",
			"driver", cfg.Database.Driver,
			"error", err,
			"hint", "check database.driver / database.dsn or set database.driver=memory",
		)
	}
	roomRepo := repoFactory.CreateRoomRepository()

	var backupScheduler *backupinfra.Scheduler
	if cfg.Backup.Enabled {
		storage, err := backup.NewFileStorage(cfg.Backup.Dir)
		if err != nil {
			log.Fatalw("failed to open backup directory", "dir", cfg.Backup.Dir, "error", err)
		}
		backupService := backup.NewBackupService(storage, "1")
		if cfg.Backup.RestoreOnStart {
			restored, err := backupinfra.NewRestoreService(backupService, roomRepo, log.Named("restore")).
				RestoreIfEmpty(context.Background())
			if err != nil {
				log.Fatalw("failed to restore rooms from backup", "error", err)
			}
			if restored > 0 {
				log.Infow("rooms restored from backup", "count", restored)
			}
		}
		backupScheduler = backupinfra.NewScheduler(backupService, roomRepo, backupinfra.Config{
			Interval:  cfg.Backup.Interval,
			Retention: cfg.Backup.Retention,
		}, log.Named("backup"))
	}

	resolver := ingest.NewYtDlpResolver(cfg.Ingest.YtDlpPath, cfg.Ingest.SocketTimeout, log.Named("ytdlp"))
	decoder := audio.NewFFmpegDecoder(cfg.Playback.FFmpegPath, audio.PCMFormat{
		SampleRate: cfg.Playback.SampleRate,
		Channels:   cfg.Playback.Channels,
	}, log.Named("ffmpeg"))

	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.FailureThreshold = cfg.Ingest.BreakerFailures
	breakerCfg.Timeout = cfg.Ingest.BreakerReset
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Ingest.MaxAttempts
	retryCfg.Jitter = true

	store, err := services.NewStore(services.StoreDeps{
		Repo:     roomRepo,
		Parsers:  ingest.DefaultParsers(),
		Prober:   ingest.NewOEmbedProber(cfg.Ingest.ProbeEndpoint, cfg.Ingest.ProbeTimeout),
		Resolver: resolver,
		Decoder:  decoder,
	}, services.StoreConfig{
		Ingest: services.IngestConfig{
			Workers: cfg.Ingest.Workers,
			Retry:   retryCfg,
			Breaker: breakerCfg,
		},
		Playback: services.PlaybackConfig{
			ChunkSize:      cfg.Playback.ChunkSize,
			ListenerBuffer: cfg.Playback.ListenerBuffer,
			IdlePoll:       cfg.Playback.IdlePoll,
		},
	}, log)
	if err != nil {
		log.Fatalw("failed to build store", "error", err)
	}

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	sc := &services.Context{Store: store, Auth: authService}

	// Handler order after the store's own handlers: push, metrics, log, mirror.
	notifier := notify.NewNotifier(store, notify.Config{
		PingInterval: cfg.Notifier.PingInterval,
		PongTimeout:  cfg.Notifier.PongTimeout,
		SendBuffer:   cfg.Notifier.SendBuffer,
		CheckOrigin:  originChecker(cfg.Auth.AllowedOrigins),
	}, log.Named("notifier"))
	mustRegister(log, store, notifier)

	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
		collector.WatchGauge("vinyl_bus_pending_events", "Events waiting for dispatch",
			func() float64 { return float64(store.Bus().Pending()) })
		collector.WatchGauge("vinyl_bus_delivered_events", "Events dispatched since start",
			func() float64 { return float64(store.Bus().Delivered()) })
		collector.WatchGauge("vinyl_ingest_backlog", "Ingestion jobs waiting for a worker",
			func() float64 { return float64(store.Ingest.Stats().Backlog) })
		mustRegister(log, store, collector)
		store.Playback.SetObserver(collector)
	}

	mustRegister(log, store, services.NewEventLogger(log.Named("events")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mirror *distributed.EventMirror
	if cfg.Monitoring.MirrorEnabled {
		if client := repoFactory.RedisClient(); client != nil {
			mirror = distributed.NewEventMirror(client, distributed.MirrorConfig{
				Channel:       cfg.Monitoring.MirrorChannel,
				BatchSize:     cfg.Monitoring.MirrorBatchSize,
				FlushInterval: cfg.Monitoring.MirrorFlush,
			}, log.Named("mirror"))
			mustRegister(log, store, mirror)

			remote := log.Named("mirror.remote")
			go func() {
				err := mirror.Subscribe(ctx, func(e *distributed.MirroredEvent) error {
					remote.Debugw("remote event", "type", e.Type, "instance", e.InstanceID, "room_id", e.RoomID)
					return nil
				})
				if err != nil && ctx.Err() == nil {
					log.Warnw("event mirror subscription ended", "error", err)
				}
			}()
		} else {
			log.Warnw("event mirror requires redis; mirror disabled")
		}
	}

	if err := store.Start(ctx); err != nil {
		log.Fatalw("failed to restore rooms",
			"error", err,
			"hint", "check database.driver / database.dsn or set database.driver=memory",
		)
	}
	if collector != nil {
		collector.SetRooms(len(store.Rooms.Rooms()))
	}

	checker := monitoring.NewHealthChecker()
	checker.AddRepositoryCheck(roomRepo, 30*time.Second, 2*time.Second)
	checker.AddBusLagCheck(store.Bus().Pending, cfg.Monitoring.MaxBusLag, 10*time.Second)
	checker.AddBinaryCheck("yt-dlp", resolver.LookPath, time.Minute)
	checker.AddBinaryCheck("ffmpeg", decoder.LookPath, time.Minute)
	if client := repoFactory.RedisClient(); client != nil {
		checker.AddRedisCheck(client, 30*time.Second, 2*time.Second)
	}
	checker.StartBackgroundChecks(ctx)
	if backupScheduler != nil {
		go backupScheduler.Start(ctx)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	var requestObserver middleware.RequestObserver
	if collector != nil {
		requestObserver = collector
	}
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(log.Named("http")), requestObserver),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	var metricsHandler http.Handler
	if cfg.Monitoring.PrometheusEnabled {
		metricsHandler = promhttp.Handler()
	}
	httphandlers.NewHealthHandler(checker, metricsHandler).SetupRoutes(router)
	httphandlers.NewAuthHandler(authService).SetupRoutes(router)
	httphandlers.NewRoomHandler(sc, notifier, audio.MIME, log.Named("rooms")).SetupRoutes(
		router,
		middleware.AuthMiddleware(authService),
		middleware.NewConnectionRateLimitMiddleware(cfg),
	)

	// No WriteTimeout: audio streams stay open for as long as the listener does.
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Stopping playback ends every open audio stream so Shutdown can drain.
	srv.RegisterOnShutdown(store.Playback.Stop)

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting vinyl server",
			"address", cfg.Server.Address,
			"database", cfg.Database.Driver,
			"rooms", len(store.Rooms.Rooms()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Close push clients first: hijacked websocket connections are not
	// tracked by Shutdown.
	notifier.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	store.Shutdown()
	if backupScheduler != nil {
		backupScheduler.Stop()
		if name, count, err := backupScheduler.Snapshot(shutdownCtx); err != nil {
			log.Warnw("final backup failed", "error", err)
		} else {
			log.Infow("final backup written", "backup_name", name, "rooms", count)
		}
	}
	cancel()
	if mirror != nil {
		mirror.Close()
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("tracer shutdown failed", "error", err)
		}
	}

	log.Info("vinyl server stopped")
}

func mustRegister(log *zap.SugaredLogger, store *services.Store, h bus.Handler[domain.Event]) {
	if err := store.Register(h); err != nil {
		log.Fatalw("failed to register event handler", "error", err)
	}
}
