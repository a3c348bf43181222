package handlers

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gin-contrib/sse"

	"github.com/nhdinh03/Download-Video/internal/domain"
	"github.com/nhdinh03/Download-Video/pkg/events"
)

// SSESink writes events to a server-sent-events response. Headers are sent
// with the first event, so an error before that can still be a JSON reply.
type SSESink struct {
	w http.ResponseWriter

	mu      sync.Mutex
	started bool
	closed  bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewSSESink creates a sink writing to w
func NewSSESink(w http.ResponseWriter) *SSESink {
	return &SSESink{w: w, done: make(chan struct{})}
}

// Emit writes one event and flushes it
func (s *SSESink) Emit(event domain.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrDisconnected
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", sse.ContentType)
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	w := &errWriter{w: s.w}
	err := sse.Encode(w, sse.Event{Data: events.Encode(event)})
	if err == nil {
		err = w.err
	}
	if err != nil {
		s.closed = true
		return fmt.Errorf("%w: %v", domain.ErrDisconnected, err)
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// Complete marks the stream finished
func (s *SSESink) Complete() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed once the producer completes the stream
func (s *SSESink) Done() <-chan struct{} {
	return s.done
}

// Close detaches the sink from the response. Later emits report a disconnect.
// It must be called before the handler returns if the stream is still open.
func (s *SSESink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// errWriter remembers the first write error, which sse.Encode does not report
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
