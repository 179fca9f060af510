package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/uwrealitylabs/humanoid-server/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

// clientWriter owns every write to one connection. Relayed frames go through
// sendChannel; terminal frames (expiry notice, close) are written only after
// the run goroutine has exited.
type clientWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	logger      *slog.Logger
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	open        atomic.Bool
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock, logger *slog.Logger) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		logger:      logger,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	cw.open.Store(true)
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()
	defer cw.open.Store(false)

	for {
		select {
		case msg := <-cw.sendChannel:
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.logger.Debug("Write failed, writer exiting", "error", err)
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(cw.clock.Since(start).Seconds())
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// trySend queues msg without blocking. It reports false when the writer is no
// longer open or its buffer is full; the message is then dropped for this client.
func (cw *clientWriter) trySend(msg []byte) bool {
	if !cw.open.Load() {
		return false
	}
	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

// stop closes the connection without a close frame.
func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a close frame with the given code and reason, preceded by
// notice when non-nil, then closes the connection. Write failures are ignored.
func (cw *clientWriter) stopGraceful(code int, reason string, notice []byte) {
	cw.stopOnce.Do(func() {
		// Signal the run goroutine to exit first
		close(cw.doneChannel)

		// Wait for run goroutine to exit before writing terminal frames
		// This prevents concurrent writes to the WebSocket connection
		cw.wg.Wait()

		if notice != nil {
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, notice); err != nil {
				cw.logger.Debug("Failed to send terminal notice", "error", err)
			}
		}

		closeMsg := websocket.FormatCloseMessage(code, reason)
		deadline := cw.clock.Now().Add(writeDeadline)
		if err := cw.connection.WriteControl(websocket.CloseMessage, closeMsg, deadline); err != nil {
			cw.logger.Debug("Failed to send close frame", "code", code, "error", err)
		}

		_ = cw.connection.Close()
	})
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	deadline := cw.clock.Now().Add(writeDeadline)
	_ = cw.connection.SetWriteDeadline(deadline)
}

func (cw *clientWriter) updateReadDeadline() {
	deadline := cw.clock.Now().Add(pongDeadline)
	_ = cw.connection.SetReadDeadline(deadline)
}
