package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

const (
	maxLineBytes     = 1024 * 1024
	lineBufferSize   = 64
	defaultWaitDelay = 5 * time.Second
)

// ProcessRunner spawns external processes with stdout and stderr merged into one line stream
type ProcessRunner struct {
	logger    *zap.Logger
	waitDelay time.Duration
}

// NewProcessRunner creates a new process runner
func NewProcessRunner(logger *zap.Logger) *ProcessRunner {
	return &ProcessRunner{
		logger:    logger,
		waitDelay: defaultWaitDelay,
	}
}

// Start spawns the command. The process is killed together with its children
// when ctx is done or when the returned process is closed.
func (r *ProcessRunner) Start(ctx context.Context, command domain.Command) (domain.Process, error) {
	// Both streams share one pipe so the OS keeps their interleaving.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, command.Binary, command.Args...)
	cmd.Env = append(os.Environ(), command.Env...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = r.waitDelay

	r.logger.Debug("Starting process", zap.String("command", FormatCommand(command.Binary, command.Args...)))

	if err := cmd.Start(); err != nil {
		cancel()
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("failed to start %s: %w", command.Binary, err)
	}
	// The child holds its own copy of the write end; EOF arrives when it exits.
	pw.Close()

	p := &process{
		cmd:       cmd,
		parentCtx: ctx,
		cancel:    cancel,
		pipe:      pr,
		lines:     make(chan string, lineBufferSize),
		drained:   make(chan struct{}),
		closed:    make(chan struct{}),
		logger:    r.logger,
	}
	go p.readLines()

	r.logger.Debug("Process started", zap.Int("pid", cmd.Process.Pid))
	return p, nil
}

type process struct {
	cmd       *exec.Cmd
	parentCtx context.Context
	cancel    context.CancelFunc
	pipe      *os.File
	lines     chan string
	drained   chan struct{}
	closed    chan struct{}
	logger    *zap.Logger

	waitOnce  sync.Once
	exitCode  int
	waitErr   error
	closeOnce sync.Once
}

func (p *process) Lines() <-chan string {
	return p.lines
}

// readLines drains the pipe until EOF. Once the consumer has closed the
// process, remaining output is discarded so the child never blocks on a full pipe.
func (p *process) readLines() {
	defer close(p.drained)
	defer close(p.lines)

	scanner := bufio.NewScanner(p.pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(scanLinesCRLF)

	for scanner.Scan() {
		select {
		case p.lines <- scanner.Text():
		case <-p.closed:
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("Output scan stopped, discarding remaining output", zap.Error(err))
		io.Copy(io.Discard, p.pipe)
	}
}

func (p *process) Wait() (int, error) {
	<-p.drained
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		p.pipe.Close()
		p.cancel()

		p.exitCode = -1
		if state := p.cmd.ProcessState; state != nil {
			p.exitCode = state.ExitCode()
		}

		var exitErr *exec.ExitError
		switch {
		case p.exitCode != 0 && p.parentCtx.Err() != nil:
			p.waitErr = p.parentCtx.Err()
		case err != nil && !errors.As(err, &exitErr):
			p.waitErr = err
		}
	})
	return p.exitCode, p.waitErr
}

func (p *process) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.cancel()
	})
	_, err := p.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// scanLinesCRLF splits on \n, \r\n or a bare \r so carriage-return progress
// redraws arrive as separate lines.
func scanLinesCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				// Need one more byte to tell \r from \r\n.
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
