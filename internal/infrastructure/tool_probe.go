package infrastructure

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ToolProbe checks that external binaries run. Successful probes are cached
// for a TTL; failures are never cached so a fixed install is picked up at once.
type ToolProbe struct {
	timeout time.Duration
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.RWMutex
	available map[string]time.Time // binary -> cache expiry
}

// NewToolProbe creates a new tool probe
func NewToolProbe(timeout, ttl time.Duration, logger *zap.Logger) *ToolProbe {
	return &ToolProbe{
		timeout:   timeout,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		available: make(map[string]time.Time),
	}
}

// Probe returns nil when binary is present and answers its version flag in time
func (p *ToolProbe) Probe(ctx context.Context, binary string) error {
	if p.cached(binary) {
		return nil
	}

	if err := p.run(ctx, binary); err != nil {
		p.mu.Lock()
		delete(p.available, binary)
		p.mu.Unlock()
		p.logger.Warn("External tool unavailable", zap.String("binary", binary), zap.Error(err))
		return err
	}

	if p.ttl > 0 {
		p.mu.Lock()
		p.available[binary] = p.now().Add(p.ttl)
		p.mu.Unlock()
	}
	return nil
}

func (p *ToolProbe) cached(binary string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	expiry, ok := p.available[binary]
	return ok && p.now().Before(expiry)
}

func (p *ToolProbe) run(ctx context.Context, binary string) error {
	path, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("%s not found: %w", binary, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, path, versionFlag(binary))
	cmd.WaitDelay = p.timeout
	out, err := cmd.Output()
	if probeCtx.Err() != nil {
		return fmt.Errorf("%s did not answer within %v: %w", binary, p.timeout, probeCtx.Err())
	}
	if err != nil {
		return fmt.Errorf("%s version check failed: %w", binary, err)
	}

	version, _, _ := strings.Cut(string(bytes.TrimSpace(out)), "\n")
	p.logger.Debug("External tool available", zap.String("binary", path), zap.String("version", version))
	return nil
}

// versionFlag returns the no-op flag the binary understands. ffmpeg-family
// tools take a single dash.
func versionFlag(binary string) string {
	base := strings.ToLower(filepath.Base(binary))
	if strings.HasPrefix(base, "ffmpeg") || strings.HasPrefix(base, "ffprobe") {
		return "-version"
	}
	return "--version"
}
