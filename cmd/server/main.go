package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"canto/internal/api"
	"canto/internal/audio"
	"canto/internal/config"
	"canto/internal/db"
	"canto/internal/events"
	"canto/internal/logging"
	"canto/internal/metrics"
	"canto/internal/pipeline"
	"canto/internal/repository"
	"canto/internal/speech"
	"canto/internal/storage"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	envErr := godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set Gin mode (default to release mode)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	provider, err := speech.NewProvider(cfg.Speech, speech.DefaultVoices(), logger)
	if err != nil {
		return err
	}

	var prober audio.Prober = audio.HeaderProber{}
	if cfg.Audio.Prober == "ffprobe" {
		prober = audio.NewFFprobeProber(cfg.Audio.FFprobePath)
	}
	normalizer := audio.NewNormalizer(prober, audio.NewFFmpegTranscoder(cfg.Audio.FFmpegPath), logger)
	store := storage.NewArtifactStore(cfg.Storage.DocumentsDir, cfg.Storage.UploadsDir)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// History: Postgres when DATABASE_URL is set, in-memory otherwise
	var repo repository.TranslationRepository
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("failed to initialize database, continuing with in-memory history", zap.Error(err))
			repo = repository.NewMemoryRepository()
		} else {
			defer conn.Close()
			repo = repository.NewPostgresRepository(conn)
			logger.Info("database and repository initialized")
		}
	} else {
		logger.Info("DATABASE_URL not set, keeping history in memory")
		repo = repository.NewMemoryRepository()
	}

	opts := pipeline.Options{
		WorkDir:    cfg.Storage.WorkDir,
		Repository: repo,
		Metrics:    m,
		Logger:     logger,
	}

	if cfg.S3.Enabled() {
		archiver, err := storage.NewS3Archiver(ctx, cfg.S3)
		if err != nil {
			logger.Warn("S3 archive disabled", zap.Error(err))
		} else {
			opts.Archiver = archiver
			logger.Info("archiving artifacts to S3", zap.String("bucket", cfg.S3.Bucket))
		}
	}

	if cfg.AMQP.URL != "" {
		publisher, err := events.NewRabbitMQPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			logger.Warn("event publishing disabled", zap.Error(err))
		} else {
			defer publisher.Close()
			opts.Publisher = publisher
			logger.Info("publishing events to RabbitMQ", zap.String("queue", cfg.AMQP.Queue))
		}
	}

	coordinator := pipeline.NewCoordinator(normalizer, provider, store, opts)

	r := gin.New()
	r.Use(logging.GinMiddleware(logger), gin.Recovery())
	r.Use(api.CORSMiddleware())
	r.MaxMultipartMemory = 32 << 20

	api.RegisterRoutes(r, api.NewHandler(coordinator, store, api.Options{
		ResponseMode:          cfg.ResponseMode,
		DefaultInputLanguage:  cfg.DefaultInputLanguage,
		DefaultOutputLanguage: cfg.DefaultOutputLanguage,
		MaxUploadBytes:        cfg.MaxUploadBytes,
		Repository:            repo,
		Metrics:               m,
		Gatherer:              reg,
		Logger:                logger,
	}))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("canto server running",
			zap.String("addr", srv.Addr),
			zap.String("provider", provider.Name()),
			zap.String("response_mode", cfg.ResponseMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
