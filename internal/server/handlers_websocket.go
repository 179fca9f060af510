package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/uwrealitylabs/humanoid-server/internal/auth"
	"github.com/uwrealitylabs/humanoid-server/internal/domain"
	"github.com/uwrealitylabs/humanoid-server/internal/metrics"
	"github.com/uwrealitylabs/humanoid-server/internal/platform/correlation"
	apperrors "github.com/uwrealitylabs/humanoid-server/internal/platform/errors"
)

const (
	maxMessageBytes    = 1 << 20
	rejectWriteTimeout = time.Second
)

const unauthorizedResponse = "HTTP/1.1 401 Unauthorized\r\n" +
	"WWW-Authenticate: Bearer\r\n" +
	"Connection: close\r\n" +
	"Content-Length: 0\r\n\r\n"

// handleWebSocket authenticates the handshake, upgrades, registers the
// connection with the relay and pumps inbound frames until the peer goes away.
func (s *Server) handleWebSocket(c echo.Context) error {
	req := c.Request()
	ctx := req.Context()
	ip := c.RealIP()

	tok, err := s.authenticator.Authenticate(req)
	if err != nil {
		reason := auth.RejectReason(err)
		metrics.WebSocketAuthRejectionsTotal.WithLabelValues(reason).Inc()
		slog.InfoContext(ctx, "WebSocket handshake rejected", "reason", reason, "remote_ip", ip)
		return s.rejectUnauthorized(c)
	}

	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.WebSocketConnectionLimitRejectionsTotal.WithLabelValues(string(reason)).Inc()
		return apperrors.UnavailableError("too many connections").WithField("reason", string(reason))
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), req, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		metrics.WebSocketUpgradesTotal.WithLabelValues("failed").Inc()
		slog.DebugContext(ctx, "WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}
	metrics.WebSocketUpgradesTotal.WithLabelValues("success").Inc()
	conn.SetReadLimit(maxMessageBytes)

	connID, err := s.relay.Register(conn, tok)
	if err != nil {
		slog.WarnContext(ctx, "Failed to register connection", "remote_ip", ip, "error", err)
		closeMsg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server unavailable")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, s.clock.Now().Add(rejectWriteTimeout))
		_ = conn.Close()
		return nil
	}

	s.readLoop(correlation.WithConnID(ctx, connID), conn)
	s.relay.Unregister(conn)
	return nil
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "Connection closed unexpectedly", "error", err)
			}
			return
		}

		if err := s.relay.Publish(conn, data); errors.Is(err, domain.ErrRelayStopped) {
			return
		}
	}
}

// rejectUnauthorized answers a failed handshake with a bare 401 on the raw
// connection and closes it. Writers that cannot be hijacked get a regular
// 401 response with Connection: close.
func (s *Server) rejectUnauthorized(c echo.Context) error {
	res := c.Response()

	raw, buf, err := http.NewResponseController(res.Writer).Hijack()
	if err != nil {
		res.Header().Set("WWW-Authenticate", "Bearer")
		res.Header().Set("Connection", "close")
		return c.NoContent(http.StatusUnauthorized)
	}
	defer raw.Close()

	res.Status = http.StatusUnauthorized
	_ = raw.SetWriteDeadline(s.clock.Now().Add(rejectWriteTimeout))
	if _, err := buf.WriteString(unauthorizedResponse); err == nil {
		_ = buf.Flush()
	}
	return nil
}
