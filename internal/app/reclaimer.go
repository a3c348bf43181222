package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

// Reclaimer periodically deletes scratch files older than the retention window
type Reclaimer struct {
	store     domain.TempFileStore
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	mu        sync.RWMutex
	running   bool
	stopChan  chan struct{}
	workerWg  sync.WaitGroup
}

// NewReclaimer creates a new reclaimer
func NewReclaimer(store domain.TempFileStore, retention, interval time.Duration, logger *zap.Logger) *Reclaimer {
	return &Reclaimer{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Start starts the reclaim loop
func (r *Reclaimer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reclaimer already running")
	}
	if r.interval <= 0 {
		r.mu.Unlock()
		return fmt.Errorf("reclaim interval must be positive")
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.mu.Unlock()

	r.logger.Info("Reclaimer started",
		zap.Duration("retention", r.retention),
		zap.Duration("interval", r.interval))

	r.workerWg.Add(1)
	go r.loop(ctx, r.stopChan)

	return nil
}

// Stop stops the reclaim loop
func (r *Reclaimer) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("reclaimer not running")
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	r.workerWg.Wait()
	r.logger.Info("Reclaimer stopped")

	return nil
}

// IsRunning returns whether the reclaim loop is running
func (r *Reclaimer) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// RunOnce performs a single reclaim pass
func (r *Reclaimer) RunOnce() (int, error) {
	removed, err := r.store.Reclaim(r.retention)
	if err != nil {
		r.logger.Warn("Reclaim pass incomplete", zap.Int("removed", removed), zap.Error(err))
		return removed, err
	}
	if removed > 0 {
		r.logger.Info("Reclaimed expired files", zap.Int("removed", removed))
	}
	return removed, nil
}

func (r *Reclaimer) loop(ctx context.Context, stop <-chan struct{}) {
	defer r.workerWg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Reclaim loop exiting", zap.String("reason", "context_cancelled"))
			return
		case <-stop:
			r.logger.Debug("Reclaim loop exiting", zap.String("reason", "stop_signal"))
			return
		case <-ticker.C:
			r.RunOnce()
		}
	}
}
