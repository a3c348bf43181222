package domain

import (
	"context"
	"io"
	"os"
	"time"
)

// Command describes one external process invocation
type Command struct {
	Binary string
	Args   []string
	Env    []string
}

// Process is a running external process. The caller that started it owns it
// exclusively and must Close it on every exit path.
type Process interface {
	// Lines yields merged stdout/stderr lines in order and is closed at EOF
	Lines() <-chan string

	// Wait returns the exit code once Lines has been drained
	Wait() (int, error)

	// Close kills the process tree if still running and releases resources
	Close() error
}

// ProcessRunner spawns external processes
type ProcessRunner interface {
	Start(ctx context.Context, cmd Command) (Process, error)
}

// ToolProber checks that an external binary is present and executable
type ToolProber interface {
	Probe(ctx context.Context, binary string) error
}

// EventSink delivers ordered events to a single subscriber.
// Emit returns ErrDisconnected once the subscriber is gone.
type EventSink interface {
	Emit(event ProgressEvent) error
	Complete()
}

// TempFileStore owns downloaded files under the scratch directory
type TempFileStore interface {
	Allocate() (*TempFile, error)
	Stat(name string) (os.FileInfo, error)
	Remove(name string) error
	Claim(name string) (io.ReadCloser, os.FileInfo, func(completed bool), error)
	Reclaim(maxAge time.Duration) (int, error)
}
