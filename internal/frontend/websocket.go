package frontend

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WebSocketSink speaks the protocol over a WebSocket, one text message per
// protocol message.
type WebSocketSink struct {
	remote

	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWebSocketSink wraps an upgraded connection. Call Attach to start serving.
func NewWebSocketSink(conn *websocket.Conn, opts ...Option) *WebSocketSink {
	return &WebSocketSink{
		remote: newRemote(opts),
		conn:   conn,
	}
}

// Attach connects the sink to session and starts reading messages.
func (s *WebSocketSink) Attach(session Session, poster Poster) error {
	if err := s.attach(session, poster, s, func() { _ = s.Close() }); err != nil {
		return fmt.Errorf("attach websocket: %w", err)
	}
	go s.readLoop()
	return nil
}

// Send implements inspector.MessageSink.
func (s *WebSocketSink) Send(message string) {
	if s.isClosed() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		s.opts.logger.Debug().Err(err).Msg("websocket write failed")
	}
}

// Close sends a close frame and detaches the frontend.
func (s *WebSocketSink) Close() error {
	s.detach()

	s.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	s.mu.Unlock()

	return s.conn.Close()
}

func (s *WebSocketSink) readLoop() {
	defer s.detach()

	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.opts.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		if err := s.deliver(string(data)); err != nil {
			s.opts.logger.Debug().Err(err).Msg("engine stopped accepting messages")
			return
		}
	}
}
