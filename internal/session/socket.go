package session

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeDeadline    = 5 * time.Second
	readSemWait      = time.Second
	writeSemWait     = time.Second
	closeGracePeriod = 2 * time.Second
)

// ErrSockCongestion indicates too many concurrent waiters on the socket for
// a given operation; the websocket library permits only one reader and one
// writer active at a time.
var ErrSockCongestion = errors.New("session: socket congested")

// socket serializes reads and writes to a *websocket.Conn. gorilla/websocket
// requires at most one concurrent reader and one concurrent writer; this
// type enforces that with a pair of 1-buffered semaphore channels instead of
// a mutex, so a context cancellation can preempt a blocked acquirer.
type socket struct {
	readSem  chan struct{}
	writeSem chan struct{}
	conn     *websocket.Conn
}

func newSocket(conn *websocket.Conn) *socket {
	return &socket{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		conn:     conn,
	}
}

// Conn exposes the underlying connection for one-time, non-concurrent setup
// such as registering a pong handler.
func (s *socket) Conn() *websocket.Conn { return s.conn }

// Close sends a normal-closure close frame and tears down the connection.
// Safe to call once no reader or writer goroutine remains active.
func (s *socket) Close() {
	s.CloseWithCode(websocket.CloseNormalClosure)
}

// CloseWithCode sends a close frame carrying code and tears down the
// connection, for callers that need to distinguish why the session ended
// (e.g. CloseGoingAway for a server-initiated shutdown).
func (s *socket) CloseWithCode(code int) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_ = s.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""))
	time.Sleep(closeGracePeriod)
	_ = s.conn.Close()
}

// Read serializes one read operation against the connection.
func (s *socket) Read(ctx context.Context, fn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return nil
	case s.readSem <- struct{}{}:
		defer func() { <-s.readSem }()
		return fn(s.conn)
	case <-time.After(readSemWait):
		return ErrSockCongestion
	}
}

// Write serializes one write operation against the connection.
func (s *socket) Write(ctx context.Context, fn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return nil
	case s.writeSem <- struct{}{}:
		defer func() { <-s.writeSem }()
		return fn(s.conn)
	case <-time.After(writeSemWait):
		return ErrSockCongestion
	}
}

func isUnexpectedClose(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}
