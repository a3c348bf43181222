package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/api"
	"github.com/nhdinh03/Download-Video/api/handlers"
	"github.com/nhdinh03/Download-Video/internal/app"
	"github.com/nhdinh03/Download-Video/internal/domain"
	"github.com/nhdinh03/Download-Video/internal/infrastructure"
	"github.com/nhdinh03/Download-Video/pkg/logger"
)

var configPath = flag.String("config", "", "Path to config file (default: search ./configs, ~/.download-video, /etc/download-video)")

func main() {
	flag.Parse()

	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(config, log); err != nil {
		log.Error("Server exited with errors", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Server exited")
}

func run(config *domain.Config, log *zap.Logger) error {
	log.Info("Starting Download-Video server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("extractor", config.Tools.ExtractorBinary),
		zap.String("scratch_dir", config.Download.ScratchDir))

	registry, err := domain.NewPlatformRegistry(config.Platforms)
	if err != nil {
		return fmt.Errorf("failed to build platform registry: %w", err)
	}

	tempFiles, err := infrastructure.NewTempFileManager(
		afero.NewOsFs(),
		config.Download.ScratchDir,
		config.Download.FileExtension,
		log.Named("files"),
	)
	if err != nil {
		return fmt.Errorf("failed to prepare scratch directory: %w", err)
	}

	// Root context for every download; cancelling it kills running extractors
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := app.NewWorkerPool(config.Pool.Size, config.Pool.QueueSize, log.Named("pool"))
	controller := app.NewRetryController(app.RetryPolicy{
		MaxAttempts:        config.Download.MaxAttempts,
		Backoff:            config.Download.RetryBackoff,
		DropProxyOnFailure: config.Download.DropProxyOnFailure,
	}, log.Named("retry"))

	manager := app.NewDownloadManager(
		ctx,
		registry,
		infrastructure.NewProcessRunner(log.Named("process")),
		infrastructure.NewToolProbe(config.Tools.ProbeTimeout, config.Tools.ProbeTTL, log.Named("probe")),
		tempFiles,
		infrastructure.NewExtractorArgs(infrastructure.ExtractorOptions{
			Binary:              config.Tools.ExtractorBinary,
			ReencoderBinary:     config.Tools.ReencoderBinary,
			UserAgent:           config.Tools.UserAgent,
			InsecureTLS:         config.Tools.InsecureTLS,
			CookiesRequireProxy: config.Download.CookiesRequireProxy,
		}),
		pool,
		controller,
		app.NewManagerConfig(config),
		log,
	)

	reclaimer := app.NewReclaimer(tempFiles, config.Download.Retention, config.Download.ReclaimInterval, log.Named("reclaim"))
	if err := reclaimer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reclaimer: %w", err)
	}

	router := api.SetupRouter(manager, tempFiles, reclaimer, config.Server.CORSOrigins, log)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	// No write timeout: streams stay open for the whole download
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var result *multierror.Error
	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("http server: %w", err))
		}
	}

	log.Info("Shutting down server...", zap.Duration("grace", config.Server.ShutdownGrace))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Server.ShutdownGrace)
	defer shutdownCancel()

	// Stop admitting work and let running downloads finish within the grace period
	if err := pool.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("worker pool: %w", err))
	}
	cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http server shutdown: %w", err))
	}
	if err := reclaimer.Stop(); err != nil {
		log.Debug("Reclaimer already stopped", zap.Error(err))
	}
	if _, err := reclaimer.RunOnce(); err != nil {
		result = multierror.Append(result, fmt.Errorf("final reclaim: %w", err))
	}

	return result.ErrorOrNil()
}
