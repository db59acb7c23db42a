package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"parish/internal/api"
	"parish/internal/broker"
	"parish/internal/config"
	"parish/internal/database"
	"parish/internal/domain"
	"parish/internal/events"
	"parish/internal/export"
	"parish/internal/google"
	"parish/internal/logging"
	"parish/internal/metrics"
	"parish/internal/models"
	"parish/internal/notify"
	"parish/internal/repository"
	"parish/internal/scheduler"
	"parish/internal/service"
	"parish/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

type app struct {
	cfg    *config.Config
	loc    *time.Location
	logger zerolog.Logger

	db       *database.DB
	redis    *redis.Client
	cache    repository.CacheStore
	bus      *events.EventBus
	sheets   *google.SheetsService
	syncer   *worker.SheetsWorker
	notifier *notify.TelegramNotifier
	exporter *export.Exporter

	services api.Services
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.App.Timezone, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, loc: loc, logger: logger}

	a.db, err = database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer a.db.Close()

	a.redis = initRedis(ctx, cfg, &logger)
	if a.redis != nil {
		defer a.redis.Close()
	}
	a.cache = initCache(a.redis, &logger)

	a.bus = events.NewEventBus()
	a.bus.OnError(func(ev *events.Event, err error) {
		logger.Warn().Err(err).Str("event", ev.Type).Int64("event_id", ev.ID).Msg("event handler failed")
	})

	if publisher := initBroker(cfg, &logger); publisher != nil {
		defer publisher.Close()
		a.bus.SubscribeAll(publisher.Handle)
	}
	a.notifier = initTelegram(cfg, loc, &logger)
	if a.notifier != nil {
		a.bus.SubscribeAll(a.notifier.Handle)
	}

	a.sheets = initGoogleSheets(ctx, cfg, loc, &logger)
	a.exporter = export.NewExporter(cfg.Exports.Path, loc, &logger)
	if a.sheets != nil {
		a.syncer = worker.NewSheetsWorker(a.db, a.sheets, a.redis, worker.RetryPolicy{}, &logger)
	}

	if err := a.initServices(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if a.syncer != nil {
		wg.Add(2)
		go func() { defer wg.Done(); a.syncer.Start(ctx) }()
		go func() { defer wg.Done(); a.sheets.RefreshCacheEvery(ctx, 10*time.Minute) }()
	}

	sched, err := a.initScheduler()
	if err != nil {
		return err
	}
	if sched != nil {
		sched.Start()
	}

	startMetrics(ctx, cfg, &logger)

	err = a.serve(ctx)

	if sched != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		sched.Stop(stopCtx)
		cancel()
	}
	wg.Wait()
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initCache prefers Redis and falls back to process memory when Redis is
// missing or goes down at runtime.
func initCache(client *redis.Client, logger *zerolog.Logger) repository.CacheStore {
	memory := repository.NewMemoryCacheRepository()
	if client == nil {
		return memory
	}
	return repository.NewFailoverCacheRepository(repository.NewRedisCacheRepository(client), memory, logger)
}

func initBroker(cfg *config.Config, logger *zerolog.Logger) *broker.Publisher {
	if cfg.Broker.URL == "" {
		return nil
	}
	publisher, err := broker.NewPublisher(cfg.Broker.URL, cfg.Broker.Exchange, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq init failed, continuing without broker")
		return nil
	}
	logger.Info().Str("exchange", cfg.Broker.Exchange).Msg("rabbitmq connected")
	return publisher
}

func initTelegram(cfg *config.Config, loc *time.Location, logger *zerolog.Logger) *notify.TelegramNotifier {
	if cfg.Telegram.BotToken == "" {
		return nil
	}
	bot, err := notify.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return nil
	}
	return notify.NewTelegramNotifier(bot, cfg.Telegram.AdminChats, loc, logger)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, loc *time.Location, logger *zerolog.Logger) *google.SheetsService {
	if !cfg.Google.Enabled() {
		return nil
	}

	sheets, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID, loc, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheets.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	if err := sheets.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}

	logger.Info().Msg("google sheets connected")
	return sheets
}

func (a *app) initServices(ctx context.Context) error {
	logger := &a.logger

	resources := service.NewResourceService(a.db, logger)
	if err := resources.Sync(ctx, a.cfg.Resources); err != nil {
		logger.Error().Err(err).Msg("sync resources")
		return err
	}

	rules := service.BookingRules{
		MaxAdvanceDays: a.cfg.Booking.MaxAdvanceDays,
		MinDuration:    time.Duration(a.cfg.Booking.MinDurationMins) * time.Minute,
		SlotStep:       time.Duration(a.cfg.Booking.SlotStepMinutes) * time.Minute,
		RateLimit:      a.cfg.Booking.RequestsPerHour,
		RateWindow:     time.Hour,
	}

	// nil *SheetsWorker must stay a nil interface
	var syncer domain.SyncWorker
	if a.syncer != nil {
		syncer = a.syncer
	}

	a.services = api.Services{
		Bookings:   service.NewBookingService(a.db, a.bus, syncer, a.cache, rules, logger),
		Resources:  resources,
		Programmes: service.NewProgrammeService(a.db, a.cache, a.bus, time.Duration(a.cfg.Statistics.CacheTTLSeconds)*time.Second, a.loc, logger),
		Members:    service.NewMemberService(a.db, logger),
		Health:     a.db.PingContext,
	}
	return nil
}

func (a *app) initScheduler() (*scheduler.Scheduler, error) {
	if !a.cfg.Scheduler.Enabled {
		return nil, nil
	}

	sched := scheduler.New(a.loc, &a.logger)
	sinks := &statisticsSinks{programmes: a.services.Programmes, exporter: a.exporter, sheets: a.sheets}

	jobs := []scheduler.Job{
		scheduler.CompleteBookingsJob(a.cfg.Scheduler.CompleteBookings, a.services.Bookings, &a.logger),
		scheduler.WarmStatisticsJob(a.cfg.Scheduler.WarmStatistics, a.services.Programmes, sinks),
	}
	if a.notifier != nil {
		jobs = append(jobs, scheduler.FailedSyncReportJob(a.cfg.Scheduler.FailedSyncReport, a.db, a.notifier, notify.FailedSyncReport, time.Now))
	}
	if a.cfg.Backup.Enabled {
		jobs = append(jobs, scheduler.BackupJob(a.cfg.Backup.Schedule, database.NewBackupService(a.db, a.cfg.Backup, &a.logger)))
	}

	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	return sched, nil
}

// statisticsSinks receives every warmed snapshot: a dated workbook on disk
// and, when configured, the Statistics tab of the bookings spreadsheet.
type statisticsSinks struct {
	programmes *service.ProgrammeService
	exporter   *export.Exporter
	sheets     *google.SheetsService
}

func (s *statisticsSinks) WriteStatistics(ctx context.Context, st *models.Statistics) error {
	programmes, err := s.programmes.List(ctx)
	if err != nil {
		return err
	}
	summaries, err := s.programmes.AttendanceSummaries(ctx)
	if err != nil {
		return err
	}

	var errs []error
	if _, err := s.exporter.SaveStatistics(st, programmes, summaries); err != nil {
		errs = append(errs, err)
	}
	if s.sheets != nil {
		if err := s.sheets.WriteStatistics(ctx, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if !cfg.API.Enabled {
		a.logger.Warn().Msg("API is disabled in config, running background jobs only")
		<-ctx.Done()
		return nil
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		var err error
		grpcServer, err = api.NewGRPCServer(cfg.API, a.services, &a.logger)
		if err != nil {
			a.logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go func() {
			if err := grpcServer.Serve(); err != nil {
				a.logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	httpServer := api.NewHTTPServer(cfg.API, a.services, a.loc, &a.logger)
	if cfg.API.HTTP.Enabled {
		go func() {
			if err := httpServer.Start(); err != nil {
				a.logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	a.logger.Info().
		Bool("grpc", cfg.API.GRPC.Enabled).
		Int("grpc_port", cfg.API.GRPC.Port).
		Int("http_port", cfg.API.HTTP.Port).
		Msg("API server started")

	<-ctx.Done()
	a.logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	a.logger.Info().Msg("API server stopped")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
