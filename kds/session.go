package kds

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yeremiapane/order-tracker/utils"
)

var (
	ErrSendBufferFull = errors.New("session send buffer full")
	ErrSessionClosed  = errors.New("session closed")
)

// Session is one connected client. Send must not block.
type Session interface {
	ID() string
	Send(msg []byte) error
	Close()
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 * 1024
)

// WSSession is a Session backed by a websocket connection. Outgoing frames go
// through a buffered channel drained by WritePump.
type WSSession struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func NewWSSession(conn *websocket.Conn, bufferSize int) *WSSession {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &WSSession{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, bufferSize),
	}
}

func (s *WSSession) ID() string { return s.id }

func (s *WSSession) Send(msg []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which then closes the connection.
func (s *WSSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// WritePump drains the send queue and keeps the connection alive with pings.
// It returns when the session is closed or a write fails.
func (s *WSSession) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				utils.ErrorLogger.WithField("session_id", s.id).WithError(err).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump reads client frames until the connection drops, passing each one
// to handle.
func (s *WSSession) ReadPump(handle func(msg []byte)) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.ErrorLogger.WithField("session_id", s.id).WithError(err).Warn("websocket closed unexpectedly")
			}
			return
		}
		if handle != nil {
			handle(message)
		}
	}
}
