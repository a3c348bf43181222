package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/internal/domain"
	"github.com/nhdinh03/Download-Video/internal/infrastructure"
)

// ManagerConfig holds the settings the download manager reads at request time
type ManagerConfig struct {
	ExtractorBinary  string
	ReencoderBinary  string
	Proxy            string
	CookiesPath      string
	StreamTimeout    time.Duration
	PreviewTimeout   time.Duration
	DiagnosticsLines int
}

// NewManagerConfig derives the manager settings from the application config
func NewManagerConfig(config *domain.Config) ManagerConfig {
	return ManagerConfig{
		ExtractorBinary:  config.Tools.ExtractorBinary,
		ReencoderBinary:  config.Tools.ReencoderBinary,
		Proxy:            config.Download.Proxy,
		CookiesPath:      config.Download.CookiesPath,
		StreamTimeout:    config.Server.StreamTimeout,
		PreviewTimeout:   config.Server.PreviewTimeout,
		DiagnosticsLines: config.Download.DiagnosticsLines,
	}
}

// DownloadManager orchestrates previews and streaming downloads. Every request
// runs as one task on the worker pool and owns its extractor process.
type DownloadManager struct {
	ctx        context.Context
	registry   *domain.PlatformRegistry
	runner     domain.ProcessRunner
	prober     domain.ToolProber
	tempFiles  domain.TempFileStore
	args       *infrastructure.ExtractorArgs
	pool       *WorkerPool
	controller *RetryController
	config     ManagerConfig
	logger     *zap.Logger
}

// NewDownloadManager creates a new download manager. ctx bounds every task;
// cancelling it kills all running extractor processes.
func NewDownloadManager(
	ctx context.Context,
	registry *domain.PlatformRegistry,
	runner domain.ProcessRunner,
	prober domain.ToolProber,
	tempFiles domain.TempFileStore,
	args *infrastructure.ExtractorArgs,
	pool *WorkerPool,
	controller *RetryController,
	config ManagerConfig,
	logger *zap.Logger,
) *DownloadManager {
	if err := domain.ValidateProxy(config.Proxy); err != nil {
		logger.Warn(domain.MessageInvalidProxy, zap.Error(err))
		config.Proxy = ""
	}
	return &DownloadManager{
		ctx:        ctx,
		registry:   registry,
		runner:     runner,
		prober:     prober,
		tempFiles:  tempFiles,
		args:       args,
		pool:       pool,
		controller: controller,
		config:     config,
		logger:     logger,
	}
}

// NewRequest validates rawURL for the named platform
func (dm *DownloadManager) NewRequest(platform, rawURL string) (*domain.DownloadRequest, error) {
	profile, ok := dm.registry.Lookup(platform)
	if !ok {
		return nil, domain.InvalidInput(domain.MessageUnknownPlatform)
	}
	sourceURL, err := domain.ValidateURL(rawURL, profile)
	if err != nil {
		dm.logger.Warn("Invalid URL",
			zap.String("platform", platform),
			zap.String("url", truncate(rawURL, 200)))
		return nil, err
	}
	return domain.NewDownloadRequest(sourceURL, profile, dm.config.Proxy, dm.config.CookiesPath), nil
}

// CheckTools probes the extractor and, for re-encoding downloads, the re-encoder
func (dm *DownloadManager) CheckTools(ctx context.Context, req *domain.DownloadRequest, download bool) error {
	if err := dm.prober.Probe(ctx, dm.config.ExtractorBinary); err != nil {
		return domain.ToolUnavailable(domain.MessageExtractorUnavailable, dm.config.ExtractorBinary, err)
	}
	if download && req.Profile.Reencode {
		if err := dm.prober.Probe(ctx, dm.config.ReencoderBinary); err != nil {
			return domain.ToolUnavailable(domain.MessageReencoderUnavailable, dm.config.ReencoderBinary, err)
		}
	}
	return nil
}

// StartStream checks tools and schedules the download. Errors are returned
// before anything is written to sink; afterwards every outcome is reported
// through sink, which is completed exactly once. The stream timeout starts
// here, so time spent queued counts against it.
func (dm *DownloadManager) StartStream(ctx context.Context, req *domain.DownloadRequest, sink domain.EventSink) error {
	if err := dm.CheckTools(ctx, req, true); err != nil {
		return err
	}

	taskCtx, cancel := context.WithTimeout(dm.ctx, dm.config.StreamTimeout)
	stream := NewEventStream(sink, dm.logger.With(zap.String("request_id", req.ID)))

	// Whichever of the task and the deadline claims the stream first owns it
	var claimed atomic.Bool
	stop := context.AfterFunc(taskCtx, func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		dm.logger.Warn("Download stream expired while queued",
			zap.String("request_id", req.ID),
			zap.Error(taskCtx.Err()))
		message := domain.MessageServiceUnavailable
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			message = domain.MessageTimeout
		}
		stream.Finish(domain.Failure(message))
	})

	err := dm.pool.Submit(func() {
		defer cancel()
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		stop()
		dm.stream(taskCtx, req, stream)
	})
	if err != nil {
		stop()
		cancel()
		return err
	}

	dm.logger.Info("Download stream scheduled",
		zap.String("request_id", req.ID),
		zap.String("platform", string(req.Platform)),
		zap.String("url", req.SourceURL))
	return nil
}

// ToolStatus reports whether the extractor and re-encoder are usable
func (dm *DownloadManager) ToolStatus(ctx context.Context) map[string]bool {
	return map[string]bool{
		"extractor": dm.prober.Probe(ctx, dm.config.ExtractorBinary) == nil,
		"reencoder": dm.prober.Probe(ctx, dm.config.ReencoderBinary) == nil,
	}
}

// Stats returns worker pool activity
func (dm *DownloadManager) Stats() PoolStats {
	return dm.pool.Stats()
}

// Accepting reports whether new requests are admitted
func (dm *DownloadManager) Accepting() bool {
	return dm.pool.Accepting()
}

// stream runs on the worker pool. ctx is independent of the subscriber, so a
// disconnected client does not stop the file from landing.
func (dm *DownloadManager) stream(ctx context.Context, req *domain.DownloadRequest, stream *EventStream) {
	defer stream.Complete()
	defer func() {
		if r := recover(); r != nil {
			dm.logger.Error("Download task panicked", zap.String("request_id", req.ID), zap.Any("panic", r))
			stream.Finish(domain.Failure(domain.MessageSystemError))
		}
	}()

	file, err := dm.tempFiles.Allocate()
	if err != nil {
		dm.logger.Error("Failed to allocate output file", zap.String("request_id", req.ID), zap.Error(err))
		stream.Finish(domain.Failure(domain.MessageSystemError))
		return
	}

	outcome := dm.controller.Run(ctx, req, dm.downloadAttempt(stream, req, file))

	switch {
	case outcome.State == domain.StateSucceeded:
		stream.Finish(domain.Done(file.Name))
		dm.logger.Info("Download completed",
			zap.String("request_id", req.ID),
			zap.String("file", file.Name),
			zap.Int("attempts", outcome.Attempts),
			zap.Bool("client_connected", !stream.Disconnected()))
	case outcome.Fallback:
		dm.removeOutput(req, file)
		stream.Finish(domain.Fallback(req.SourceURL))
		dm.logger.Error("Download failed after retries, fallback signaled",
			zap.String("request_id", req.ID),
			zap.String("url", req.SourceURL),
			zap.Int("attempts", outcome.Attempts),
			zap.Error(outcome.Err))
	default:
		dm.removeOutput(req, file)
		stream.Finish(domain.Failure(domain.MessageOf(outcome.Err)))
		dm.logger.Error("Download failed",
			zap.String("request_id", req.ID),
			zap.String("url", req.SourceURL),
			zap.Error(outcome.Err))
	}
}

func (dm *DownloadManager) downloadAttempt(stream *EventStream, req *domain.DownloadRequest, file *domain.TempFile) AttemptFunc {
	return func(ctx context.Context, attempt *domain.DownloadAttempt) error {
		cmd := dm.args.DownloadCommand(req, attempt.ProxyUsed, file.Path)
		proc, err := dm.runner.Start(ctx, cmd)
		if err != nil {
			return domain.ProcessFailure(err)
		}
		defer proc.Close()

		parser := infrastructure.NewProgressParser(req.Profile, dm.config.DiagnosticsLines, true)
		for line := range proc.Lines() {
			parsed := parser.Classify(line)
			switch parsed.Kind {
			case infrastructure.LineProgress:
				stream.Progress(parsed.Percent)
			case infrastructure.LineError:
				dm.logger.Debug("Extractor reported an error", zap.String("request_id", req.ID), zap.String("line", parsed.Text))
			}
		}

		code, err := proc.Wait()
		attempt.SetExitCode(code)
		attempt.RawOutputTail = parser.Tail()
		if err != nil {
			return domain.ProcessFailure(err)
		}
		if code != 0 {
			dm.removeOutput(req, file)
			return domain.ProcessFailure(fmt.Errorf("extractor exited with code %d", code))
		}

		info, err := dm.tempFiles.Stat(file.Name)
		if err != nil || info.Size() == 0 {
			return domain.ProcessFailure(fmt.Errorf("output file missing after successful exit"))
		}
		return nil
	}
}

func (dm *DownloadManager) removeOutput(req *domain.DownloadRequest, file *domain.TempFile) {
	if err := dm.tempFiles.Remove(file.Name); err != nil {
		dm.logger.Warn("Failed to remove partial output, leaving it for reclaim",
			zap.String("request_id", req.ID),
			zap.String("file", file.Name),
			zap.Error(err))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return strings.ToValidUTF8(s[:maxLen], "") + "..."
}
