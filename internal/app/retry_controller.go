package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

// RetryPolicy bounds how a request is re-attempted
type RetryPolicy struct {
	MaxAttempts        int
	Backoff            time.Duration
	DropProxyOnFailure bool
}

// AttemptFunc runs one attempt. A nil error means the required output is present.
type AttemptFunc func(ctx context.Context, attempt *domain.DownloadAttempt) error

// Outcome is the final state of a controller run
type Outcome struct {
	State    domain.AttemptState
	Fallback bool // retries exhausted; the caller should signal a fallback
	Attempts int
	Last     *domain.DownloadAttempt
	Err      error
}

// RetryController re-invokes an attempt until it succeeds, fails fatally or
// runs out of attempts. Attempts for one request are strictly sequential.
type RetryController struct {
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetryController creates a new retry controller
func NewRetryController(policy RetryPolicy, logger *zap.Logger) *RetryController {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryController{policy: policy, logger: logger}
}

// Run drives the state machine for req
func (c *RetryController) Run(ctx context.Context, req *domain.DownloadRequest, fn AttemptFunc) Outcome {
	proxy := req.Proxy
	proxyDropped := false
	cause := "initial"

	for n := 1; ; n++ {
		c.transition(req, domain.StateAttempting, n, cause, zap.Bool("proxy", proxy != ""))

		attempt := domain.NewDownloadAttempt(n, proxy)
		err := fn(ctx, attempt)
		if err == nil {
			c.transition(req, domain.StateSucceeded, n, "output ready")
			return Outcome{State: domain.StateSucceeded, Attempts: n, Last: attempt}
		}
		if attempt.Err == nil {
			attempt.Err = err
		}

		if ctx.Err() != nil {
			return c.interrupted(ctx, req, n, attempt)
		}

		if !retryable(err) {
			c.transition(req, domain.StateFailed, n, "fatal error", zap.Error(err))
			return Outcome{State: domain.StateFailed, Attempts: n, Last: attempt, Err: err}
		}

		c.logger.Warn("Attempt failed",
			zap.String("request_id", req.ID),
			zap.Int("attempt", n),
			zap.Int("max_attempts", c.policy.MaxAttempts),
			zap.Intp("exit_code", attempt.ExitCode),
			zap.String("output_tail", attempt.RawOutputTail),
			zap.Error(err))

		if n >= c.policy.MaxAttempts {
			c.transition(req, domain.StateFallbackSignaled, n, "attempts exhausted")
			c.transition(req, domain.StateFailed, n, "fallback signaled")
			return Outcome{State: domain.StateFailed, Fallback: true, Attempts: n, Last: attempt, Err: err}
		}

		cause = "retry after failure"
		if proxy != "" && !proxyDropped && c.policy.DropProxyOnFailure {
			proxy = ""
			proxyDropped = true
			cause = "retry without proxy"
		}

		select {
		case <-time.After(c.policy.Backoff):
		case <-ctx.Done():
			return c.interrupted(ctx, req, n, attempt)
		}
	}
}

func (c *RetryController) interrupted(ctx context.Context, req *domain.DownloadRequest, n int, attempt *domain.DownloadAttempt) Outcome {
	var err error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = domain.NewError(domain.KindTimeout, domain.MessageTimeout, ctx.Err())
	} else {
		err = domain.NewError(domain.KindUnavailable, domain.MessageServiceUnavailable, ctx.Err())
	}
	c.transition(req, domain.StateFailed, n, "interrupted", zap.Error(ctx.Err()))
	return Outcome{State: domain.StateFailed, Attempts: n, Last: attempt, Err: err}
}

func (c *RetryController) transition(req *domain.DownloadRequest, state domain.AttemptState, attempt int, cause string, fields ...zap.Field) {
	c.logger.Info("Download state transition",
		append([]zap.Field{
			zap.String("request_id", req.ID),
			zap.String("platform", string(req.Platform)),
			zap.String("state", string(state)),
			zap.Int("attempt", attempt),
			zap.String("cause", cause),
		}, fields...)...)
}

// retryable treats untyped errors as process failures
func retryable(err error) bool {
	var e *domain.Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return true
}
