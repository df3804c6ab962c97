package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/null-channel/twitch-alerts/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrWriterClosed   = errors.New("writer closed")
)

// clientWriter is the Sender of one overlay connection. Send only enqueues; writeLoop is the
// sole goroutine writing data, pings and the close frame to the socket.
type clientWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	closeOnce   sync.Once
	closeReason string
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	cw.configurePongHandler()
	return cw
}

// Send enqueues msg without blocking. A full buffer means the client is too slow to keep up.
func (cw *clientWriter) Send(msg []byte) error {
	select {
	case <-cw.doneChannel:
		return ErrWriterClosed
	default:
	}

	select {
	case cw.sendChannel <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close asks writeLoop to send a close frame with reason and stop. Safe to call repeatedly.
func (cw *clientWriter) Close(reason string) {
	cw.closeOnce.Do(func() {
		cw.closeReason = reason
		close(cw.doneChannel)
	})
}

func (cw *clientWriter) writeLoop(ctx context.Context) error {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-cw.sendChannel:
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				return fmt.Errorf("write message: %w", err)
			}
			metrics.WebSocketMessageSendDuration.Observe(cw.clock.Since(start).Seconds())

		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				return fmt.Errorf("write ping: %w", err)
			}

		case <-cw.doneChannel:
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, cw.closeReason)
			cw.updateWriteDeadline()
			_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
			return ErrWriterClosed

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
