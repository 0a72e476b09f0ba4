package ws

import "sync"

// Conn is the transport a session writes to. *websocket.Conn satisfies it;
// tests substitute an in-memory sink.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

const sessionSendBuffer = 32

// Session is one registered connection: an opaque handle, an optional
// authenticated identity, and the set of subscribed channels. identity and
// subscriptions are guarded by the hub's registry lock; the send channel's
// lifetime is guarded by the session's own mutex.
type Session struct {
	handle   string
	conn     Conn
	identity string
	channels map[string]struct{}

	mu     sync.Mutex
	send   chan Envelope
	closed bool
}

func (s *Session) Handle() string { return s.handle }

// enqueue hands an envelope to the write pump without blocking. A full buffer
// means the consumer is not keeping up; the caller drops the session.
func (s *Session) enqueue(env Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- env:
		return true
	default:
		return false
	}
}

// close shuts the send channel exactly once, releasing the write pump.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// writePump serializes all writes to the connection. It exits when the send
// channel is closed and closes the underlying transport on the way out.
func (s *Session) writePump() {
	defer s.conn.Close()
	for env := range s.send {
		if err := s.conn.WriteJSON(env); err != nil {
			return
		}
	}
}
