package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/internal/domain"
	"github.com/nhdinh03/Download-Video/internal/infrastructure"
)

// missingField is what the extractor prints for an absent field
const missingField = "NA"

// previewState accumulates fields across attempts so a later attempt only
// has to supply what an earlier one missed.
type previewState struct {
	profile   *domain.PlatformProfile
	title     string
	thumbnail string
	directURL string
}

// merge applies the fields printed by one attempt. The extractor prints
// title, thumbnail and url on one line each, so fields[0] is the thumbnail
// slot and fields[1] the media URL slot, either of which may be NA.
func (s *previewState) merge(title string, fields []string) {
	if s.title == "" && title != "" && title != missingField {
		s.title = title
	}
	if len(fields) > 0 && s.thumbnail == "" && s.allowed(fields[0]) {
		s.thumbnail = fields[0]
	}
	if len(fields) > 1 && s.directURL == "" && isLink(fields[1]) {
		s.directURL = fields[1]
	}
}

func isLink(field string) bool {
	return strings.HasPrefix(field, "https://") || strings.HasPrefix(field, "http://")
}

func (s *previewState) allowed(link string) bool {
	if !strings.HasPrefix(link, "https://") {
		return false
	}
	u, err := url.Parse(link)
	return err == nil && s.profile.AllowsThumbnailHost(u.Hostname())
}

func (s *previewState) complete() bool {
	if s.profile.PreviewRequires == domain.RequireDirectURL {
		return s.directURL != ""
	}
	return s.thumbnail != ""
}

func (s *previewState) result() *domain.PreviewResult {
	res := &domain.PreviewResult{
		Title:          s.title,
		ThumbnailURL:   s.thumbnail,
		DirectVideoURL: s.directURL,
	}
	if res.Title == "" {
		res.Title = domain.UntitledVideo
	}
	if res.ThumbnailURL == "" {
		res.ThumbnailURL = domain.PlaceholderThumbnail
	}
	return res
}

type previewOutcome struct {
	result *domain.PreviewResult
	err    error
}

// Preview resolves title, thumbnail and media URL for req. The preview
// timeout starts now and covers time spent queued. On failure after the tools
// were found, the returned result still carries the best partial fields with
// placeholders substituted.
func (dm *DownloadManager) Preview(ctx context.Context, req *domain.DownloadRequest) (*domain.PreviewResult, error) {
	if err := dm.CheckTools(ctx, req, false); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, dm.config.PreviewTimeout)
	defer cancel()
	stop := context.AfterFunc(dm.ctx, cancel)
	defer stop()

	done := make(chan previewOutcome, 1)
	err := dm.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				dm.logger.Error("Preview task panicked", zap.String("request_id", req.ID), zap.Any("panic", r))
				done <- previewOutcome{err: domain.NewError(domain.KindProcessFailure, domain.MessageSystemError, fmt.Errorf("panic: %v", r))}
			}
		}()
		if ctx.Err() != nil {
			done <- previewOutcome{err: ctx.Err()}
			return
		}
		res, err := dm.preview(ctx, req)
		done <- previewOutcome{result: res, err: err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		dm.logger.Warn("Preview abandoned",
			zap.String("request_id", req.ID),
			zap.Error(ctx.Err()))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewError(domain.KindTimeout, domain.MessageTimeout, ctx.Err())
		}
		return nil, domain.NewError(domain.KindUnavailable, domain.MessageServiceUnavailable, ctx.Err())
	}
}

func (dm *DownloadManager) preview(ctx context.Context, req *domain.DownloadRequest) (*domain.PreviewResult, error) {
	state := &previewState{profile: req.Profile}
	outcome := dm.controller.Run(ctx, req, dm.previewAttempt(req, state))
	res := state.result()

	if outcome.State == domain.StateSucceeded {
		dm.logger.Info("Preview resolved",
			zap.String("request_id", req.ID),
			zap.String("platform", string(req.Platform)),
			zap.Int("attempts", outcome.Attempts),
			zap.Bool("direct_url", res.DirectVideoURL != ""))
		return res, nil
	}

	dm.logger.Error("Preview failed",
		zap.String("request_id", req.ID),
		zap.String("url", req.SourceURL),
		zap.Int("attempts", outcome.Attempts),
		zap.Error(outcome.Err))

	switch domain.KindOf(outcome.Err) {
	case domain.KindTimeout, domain.KindUnavailable:
		return res, outcome.Err
	}
	return res, domain.NewError(domain.KindProcessFailure, domain.MessagePreviewFailed, outcome.Err)
}

func (dm *DownloadManager) previewAttempt(req *domain.DownloadRequest, state *previewState) AttemptFunc {
	return func(ctx context.Context, attempt *domain.DownloadAttempt) error {
		proc, err := dm.runner.Start(ctx, dm.args.PreviewCommand(req, attempt.ProxyUsed))
		if err != nil {
			return domain.ProcessFailure(err)
		}
		defer proc.Close()

		parser := infrastructure.NewProgressParser(req.Profile, dm.config.DiagnosticsLines, false)
		var title string
		var fields []string
		for line := range proc.Lines() {
			parsed := parser.Classify(line)
			switch parsed.Kind {
			case infrastructure.LineTitle:
				title = parsed.Text
			case infrastructure.LineThumbnail, infrastructure.LineURL:
				fields = append(fields, parsed.Text)
			case infrastructure.LineUnknown:
				if parsed.Text == missingField {
					fields = append(fields, parsed.Text)
				}
			}
		}

		code, err := proc.Wait()
		attempt.SetExitCode(code)
		attempt.RawOutputTail = parser.Tail()
		state.merge(title, fields)
		if err != nil {
			return domain.ProcessFailure(err)
		}
		if code != 0 {
			return domain.ProcessFailure(fmt.Errorf("extractor exited with code %d", code))
		}
		if !state.complete() {
			return domain.ProcessFailure(fmt.Errorf("extractor output is missing the %s", state.profile.PreviewRequires))
		}
		return nil
	}
}
