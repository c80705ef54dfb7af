package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"nobat/internal/api"
	"nobat/internal/config"
	"nobat/internal/database"
	"nobat/internal/domain"
	"nobat/internal/events"
	"nobat/internal/export"
	"nobat/internal/google"
	"nobat/internal/logging"
	"nobat/internal/metrics"
	"nobat/internal/notify"
	"nobat/internal/payment"
	"nobat/internal/repository"
	"nobat/internal/schedule"
	"nobat/internal/service"
	"nobat/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, logger); err != nil {
		return err
	}

	closures, err := loadClosures(cfg.Schedule.ClosuresPath, logger)
	if err != nil {
		return err
	}

	grid, err := schedule.NewGrid(cfg.Schedule)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("database init failed")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, sessionRepo := initSessionRepository(ctx, cfg, logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	sheetsService := initGoogleSheets(ctx, cfg, logger)

	var syncer domain.SyncEnqueuer
	if sheetsService != nil {
		retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
		syncWorker := worker.NewSyncWorker(db, sheetsService, redisClient, retryPolicy, logger)
		go syncWorker.Start(ctx)
		syncer = syncWorker
	}

	eventBus := events.NewEventBus()
	if cfg.Telegram.Enabled {
		notifier, err := notify.New(cfg.Telegram, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram notifier disabled")
		} else {
			notifier.SubscribeTo(eventBus)
		}
	}

	var gateway domain.PaymentGateway
	if cfg.Payment.Enabled {
		gateway = payment.NewClient(cfg.Payment, logger)
	}

	bookingService := service.NewBookingService(
		db, sessionRepo, gateway, eventBus, syncer,
		grid, closures, cfg.Pricing.SlotPrice, cfg.Payment.CallbackURL, logger,
	)
	sessionService := service.NewSessionService(sessionRepo, db, logger)
	exporter := export.NewService(db, cfg.Exports.Path, logger)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
		go backupService.Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go serveMetrics(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	server := api.NewServer(cfg, bookingService, sessionService, exporter, db, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := baseLogger.With().Str("component", "server-main").Logger()

	return cfg, &logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create database directory")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create exports directory")
		return err
	}
	return nil
}

// loadClosures reads the ad-hoc closed dates file. A missing file just
// means no closures.
func loadClosures(path string, logger *zerolog.Logger) (map[string]struct{}, error) {
	closures := map[string]struct{}{}
	if path == "" {
		return closures, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info().Str("path", path).Msg("no closures file, none applied")
			return closures, nil
		}
		return nil, err
	}

	var parsed struct {
		Closures []string `yaml:"closures"`
	}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to parse closures file")
		return nil, err
	}

	for _, day := range parsed.Closures {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return nil, fmt.Errorf("invalid closure date %q: %w", day, err)
		}
		closures[day] = struct{}{}
	}

	logger.Info().Int("count", len(closures)).Msg("closures loaded")
	return closures, nil
}

func initSessionRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.SessionRepository) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	fallback := repository.NewMemorySessionRepository(cfg.Session.TTL)
	if redisClient == nil {
		return nil, fallback
	}

	primary := repository.NewRedisSessionRepository(redisClient, cfg.Session.TTL)
	return redisClient, repository.NewFailoverSessionRepository(primary, fallback, logger)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if !cfg.Google.Enabled {
		return nil
	}

	sheetsSvc, err := google.NewSheetsService(
		cfg.Google.CredentialsFile,
		cfg.Google.AppointmentsSheetID,
		cfg.Google.AppointmentsSheetName,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Google Sheets service")
		return nil
	}

	if err := sheetsSvc.TestConnection(ctx); err != nil {
		logger.Error().Err(err).Msg("Google Sheets connection test failed")
		return nil
	}

	logger.Info().Msg("Google Sheets service initialized successfully")
	return sheetsSvc
}

func serveMetrics(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", srv.Addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
