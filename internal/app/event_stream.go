package app

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

// EventStream guards an EventSink for one request: progress never goes
// backwards, exactly one terminal event is sent, nothing follows it, and the
// sink is completed once. A disconnected subscriber is logged, not fatal.
type EventStream struct {
	sink   domain.EventSink
	logger *zap.Logger

	mu           sync.Mutex
	lastPercent  int
	terminal     *domain.ProgressEvent
	disconnected bool
	completeOnce sync.Once
}

// NewEventStream wraps sink
func NewEventStream(sink domain.EventSink, logger *zap.Logger) *EventStream {
	return &EventStream{
		sink:        sink,
		logger:      logger,
		lastPercent: -1,
	}
}

// Progress emits a progress event if it advances past the last one sent
func (s *EventStream) Progress(percent int) {
	event := domain.Progress(percent)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal != nil || event.Percent <= s.lastPercent {
		return
	}
	s.lastPercent = event.Percent
	s.emitLocked(event)
}

// Finish emits the terminal event and completes the sink. Only the first call has any effect.
func (s *EventStream) Finish(event domain.ProgressEvent) bool {
	s.mu.Lock()
	if s.terminal != nil {
		first := s.terminal.Kind
		s.mu.Unlock()
		s.logger.Warn("Dropping second terminal event",
			zap.String("kind", string(event.Kind)),
			zap.String("first", string(first)))
		return false
	}
	s.terminal = &event
	s.emitLocked(event)
	s.mu.Unlock()

	s.Complete()
	return true
}

// Complete completes the underlying sink once
func (s *EventStream) Complete() {
	s.completeOnce.Do(s.sink.Complete)
}

// Terminal returns the terminal event sent, if any
func (s *EventStream) Terminal() (domain.ProgressEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal == nil {
		return domain.ProgressEvent{}, false
	}
	return *s.terminal, true
}

// Disconnected reports whether the subscriber has gone away
func (s *EventStream) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

func (s *EventStream) emitLocked(event domain.ProgressEvent) {
	if s.disconnected {
		return
	}
	err := s.sink.Emit(event)
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrDisconnected) {
		s.disconnected = true
		s.logger.Warn("Client disconnected, continuing download", zap.String("event", string(event.Kind)))
		return
	}
	s.logger.Error("Failed to emit event", zap.String("event", string(event.Kind)), zap.Error(err))
}
