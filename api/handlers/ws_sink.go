package handlers

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhdinh03/Download-Video/internal/domain"
	"github.com/nhdinh03/Download-Video/pkg/events"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WSSink writes events as WebSocket text frames
type WSSink struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool

	done     chan struct{}
	doneOnce sync.Once
	gone     chan struct{}
	goneOnce sync.Once
}

// NewWSSink wraps an upgraded connection and starts watching for the client going away
func NewWSSink(conn *websocket.Conn) *WSSink {
	s := &WSSink{
		conn: conn,
		done: make(chan struct{}),
		gone: make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Emit sends one event frame
func (s *WSSink) Emit(event domain.ProgressEvent) error {
	return s.write(websocket.TextMessage, []byte(events.Encode(event)))
}

// Complete marks the stream finished
func (s *WSSink) Complete() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed once the producer completes the stream
func (s *WSSink) Done() <-chan struct{} {
	return s.done
}

// Gone is closed when the client disconnects
func (s *WSSink) Gone() <-chan struct{} {
	return s.gone
}

// Ping keeps idle connections alive through proxies
func (s *WSSink) Ping() error {
	return s.write(websocket.PingMessage, nil)
}

// Close sends a normal close frame and closes the connection
func (s *WSSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	}
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *WSSink) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrDisconnected
	}
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		s.closed = true
		return fmt.Errorf("%w: %v", domain.ErrDisconnected, err)
	}
	return nil
}

// readLoop consumes control frames; any read error means the client is gone
func (s *WSSink) readLoop() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			s.goneOnce.Do(func() { close(s.gone) })
			return
		}
	}
}
