package broadcast

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/uwrealitylabs/humanoid-server/internal/domain"
	"github.com/uwrealitylabs/humanoid-server/internal/metrics"
)

const expiryCloseReason = "token expired"

// expirySweeper evicts registered connections whose token is no longer valid.
type expirySweeper struct {
	tokens domain.TokenValidator
	clock  clockwork.Clock
	notice []byte
}

func newExpirySweeper(tokens domain.TokenValidator, clock clockwork.Clock) *expirySweeper {
	notice, _ := json.Marshal(domain.NewExpiryNotice())
	return &expirySweeper{
		tokens: tokens,
		clock:  clock,
		notice: notice,
	}
}

// sweep removes every connection whose token fails validation and returns the
// number removed. Entries leave the registry before their close handshake
// starts, so an evicted connection never receives another broadcast.
func (s *expirySweeper) sweep(reg *registry) int {
	start := s.clock.Now()
	evicted := 0

	reg.each(func(conn *websocket.Conn, c *client) {
		if s.tokens.IsValid(c.token) {
			return
		}

		reg.remove(conn)
		evicted++

		metrics.RelayConnectedClients.Dec()
		metrics.RelayExpiryEvictionsTotal.Inc()
		metrics.WebSocketConnectionDuration.Observe(s.clock.Since(c.connectedAt).Seconds())
		c.logger.Info("Token expired, closing connection")

		go c.writer.stopGraceful(domain.CloseTokenExpired, expiryCloseReason, s.notice)
	})

	metrics.RelaySweepDuration.Observe(s.clock.Since(start).Seconds())
	return evicted
}
