package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/internal/domain"
	"github.com/nhdinh03/Download-Video/internal/infrastructure"
)

// scriptedRun describes what one fake extractor invocation prints and returns
type scriptedRun struct {
	lines    []string
	exitCode int
	output   []byte // written to the -o path when the run exits 0
	startErr error
	hang     bool // blocks until the context is cancelled
}

// fakeRunner replays scripted runs in order; the last run repeats
type fakeRunner struct {
	fs   afero.Fs
	runs []scriptedRun

	mu       sync.Mutex
	commands []domain.Command
}

func (r *fakeRunner) Start(ctx context.Context, cmd domain.Command) (domain.Process, error) {
	r.mu.Lock()
	n := len(r.commands)
	r.commands = append(r.commands, cmd)
	run := r.runs[len(r.runs)-1]
	if n < len(r.runs) {
		run = r.runs[n]
	}
	r.mu.Unlock()

	if run.startErr != nil {
		return nil, run.startErr
	}

	p := &fakeProcess{
		ctx:    ctx,
		run:    run,
		fs:     r.fs,
		output: argAfter(cmd.Args, "-o"),
		lines:  make(chan string),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.feed()
	return p, nil
}

func (r *fakeRunner) Commands() []domain.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Command(nil), r.commands...)
}

type fakeProcess struct {
	ctx       context.Context
	run       scriptedRun
	fs        afero.Fs
	output    string
	lines     chan string
	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func (p *fakeProcess) feed() {
	defer close(p.done)
	defer close(p.lines)
	for _, line := range p.run.lines {
		select {
		case p.lines <- line:
		case <-p.ctx.Done():
			return
		case <-p.closed:
			return
		}
	}
	if p.run.hang {
		select {
		case <-p.ctx.Done():
		case <-p.closed:
		}
	}
}

func (p *fakeProcess) Lines() <-chan string { return p.lines }

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	if err := p.ctx.Err(); err != nil {
		return -1, err
	}
	if p.run.exitCode == 0 && p.run.output != nil && p.output != "" {
		if err := afero.WriteFile(p.fs, p.output, p.run.output, 0644); err != nil {
			return -1, err
		}
	}
	return p.run.exitCode, nil
}

func (p *fakeProcess) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	<-p.done
	return nil
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// fakeProber reports the configured error per binary and counts probes
type fakeProber struct {
	mu      sync.Mutex
	missing map[string]error
	probes  []string
}

func (p *fakeProber) Probe(ctx context.Context, binary string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes = append(p.probes, binary)
	return p.missing[binary]
}

// recordingSink records every event and reports a disconnect after
// disconnectAfter accepted events when set
type recordingSink struct {
	disconnectAfter int

	mu        sync.Mutex
	events    []domain.ProgressEvent
	attempted []domain.ProgressEvent
	completed int
	done      chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{done: make(chan struct{})}
}

func (s *recordingSink) Emit(event domain.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempted = append(s.attempted, event)
	if s.disconnectAfter > 0 && len(s.events) >= s.disconnectAfter {
		return domain.ErrDisconnected
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	if s.completed == 1 {
		close(s.done)
	}
}

func (s *recordingSink) Events() []domain.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ProgressEvent(nil), s.events...)
}

func (s *recordingSink) Attempted() []domain.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ProgressEvent(nil), s.attempted...)
}

func (s *recordingSink) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func (s *recordingSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream was not completed")
	}
}

type testManager struct {
	*DownloadManager
	fs        afero.Fs
	tempFiles *infrastructure.TempFileManager
	runner    *fakeRunner
	prober    *fakeProber
}

type managerOption func(*ManagerConfig, *RetryPolicy)

func withProxy(proxy string) managerOption {
	return func(c *ManagerConfig, _ *RetryPolicy) { c.Proxy = proxy }
}

func withStreamTimeout(d time.Duration) managerOption {
	return func(c *ManagerConfig, _ *RetryPolicy) {
		c.StreamTimeout = d
		c.PreviewTimeout = d
	}
}

func withPreviewTimeout(d time.Duration) managerOption {
	return func(c *ManagerConfig, _ *RetryPolicy) { c.PreviewTimeout = d }
}

func newTestManager(t *testing.T, runs []scriptedRun, opts ...managerOption) *testManager {
	t.Helper()
	logger := zap.NewNop()
	fs := afero.NewMemMapFs()

	tempFiles, err := infrastructure.NewTempFileManager(fs, "/scratch", ".mp4", logger)
	require.NoError(t, err)

	registry, err := domain.NewPlatformRegistry(nil)
	require.NoError(t, err)

	config := ManagerConfig{
		ExtractorBinary:  "yt-dlp",
		ReencoderBinary:  "ffmpeg",
		StreamTimeout:    5 * time.Second,
		PreviewTimeout:   5 * time.Second,
		DiagnosticsLines: 10,
	}
	policy := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, DropProxyOnFailure: true}
	for _, opt := range opts {
		opt(&config, &policy)
	}

	pool := NewWorkerPool(2, 4, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool.Shutdown(ctx)
	})

	runner := &fakeRunner{fs: fs, runs: runs}
	prober := &fakeProber{missing: map[string]error{}}
	args := infrastructure.NewExtractorArgs(infrastructure.ExtractorOptions{
		Binary:          config.ExtractorBinary,
		ReencoderBinary: config.ReencoderBinary,
	})

	dm := NewDownloadManager(context.Background(), registry, runner, prober, tempFiles, args,
		pool, NewRetryController(policy, logger), config, logger)

	return &testManager{
		DownloadManager: dm,
		fs:              fs,
		tempFiles:       tempFiles,
		runner:          runner,
		prober:          prober,
	}
}
