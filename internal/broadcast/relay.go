package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/uwrealitylabs/humanoid-server/internal/domain"
	"github.com/uwrealitylabs/humanoid-server/internal/metrics"
	"github.com/uwrealitylabs/humanoid-server/internal/payload"
	"github.com/uwrealitylabs/humanoid-server/internal/platform/logging"
)

const (
	commandTimeout   = 5 * time.Second  // Actor command timeout
	stopTimeout      = 10 * time.Second // Graceful shutdown timeout
	cmdChannelSize   = 256
	depthWarnPercent = 80
)

// relayCmd is the command interface for the Relay actor.
type relayCmd interface{ isRelayCmd() }

type baseRelayCmd struct{}

func (baseRelayCmd) isRelayCmd() {}

type registerCmd struct {
	baseRelayCmd
	connection   *websocket.Conn
	token        string
	replyChannel chan string
}

type unregisterCmd struct {
	baseRelayCmd
	connection *websocket.Conn
}

type publishCmd struct {
	baseRelayCmd
	from *websocket.Conn
	data []byte
}

type sweepCmd struct {
	baseRelayCmd
	replyChannel chan int
}

type clientCountCmd struct {
	baseRelayCmd
	replyChannel chan int
}

type stopCmd struct {
	baseRelayCmd
}

// Relay fans messages from one authenticated connection out to every other
// registered connection, and evicts connections whose token has expired.
//
// A single goroutine owns the connection registry; registration, removal,
// fan-out and expiry sweeps are serialised through its command channel.
type Relay struct {
	cmdCh         chan relayCmd
	clock         clockwork.Clock
	registry      *registry
	sweeper       *expirySweeper
	validate      payload.Validator
	done          chan struct{}
	stopTimeout   time.Duration
	sweepInterval time.Duration
}

// NewRelay creates and starts a relay.
// tokens is consulted on every sweep; validate decides which inbound frames are forwarded.
func NewRelay(tokens domain.TokenValidator, validate payload.Validator, clock clockwork.Clock, sweepInterval time.Duration) *Relay {
	r := &Relay{
		cmdCh:         make(chan relayCmd, cmdChannelSize),
		clock:         clock,
		registry:      newRegistry(),
		sweeper:       newExpirySweeper(tokens, clock),
		validate:      validate,
		done:          make(chan struct{}),
		stopTimeout:   stopTimeout,
		sweepInterval: sweepInterval,
	}
	go r.run()
	return r
}

// Register adds an authenticated connection and returns its id. Once Register
// returns, the connection receives broadcasts and is covered by expiry sweeps.
func (r *Relay) Register(conn *websocket.Conn, token string) (string, error) {
	replyCh := make(chan string, 1)
	if !r.submit(registerCmd{connection: conn, token: token, replyChannel: replyCh}) {
		return "", domain.ErrRelayStopped
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case id := <-replyCh:
		return id, nil
	case <-r.done:
		return "", domain.ErrRelayStopped
	case <-timer.Chan():
		return "", fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a connection after its transport closed or failed.
// Unregistering an unknown connection is a no-op.
func (r *Relay) Unregister(conn *websocket.Conn) {
	r.submit(unregisterCmd{connection: conn})
}

// Publish relays data from a registered connection to all others. Frames that
// fail payload validation are logged and dropped; the sender is not notified.
func (r *Relay) Publish(from *websocket.Conn, data []byte) error {
	if err := r.validate(data); err != nil {
		metrics.RelayMessagesReceivedTotal.WithLabelValues("malformed").Inc()
		slog.Warn("Dropping malformed message", "remote_addr", from.RemoteAddr().String(), "bytes", len(data), "error", err)
		return err
	}

	metrics.RelayMessagesReceivedTotal.WithLabelValues("accepted").Inc()
	if !r.submit(publishCmd{from: from, data: data}) {
		return domain.ErrRelayStopped
	}
	return nil
}

// Sweep runs an expiry pass immediately and returns the number of evicted connections.
func (r *Relay) Sweep() int {
	replyCh := make(chan int, 1)
	if !r.submit(sweepCmd{replyChannel: replyCh}) {
		return 0
	}
	select {
	case n := <-replyCh:
		return n
	case <-r.done:
		return 0
	}
}

// ClientCount returns the number of registered connections.
// Returns -1 if the relay does not answer in time.
func (r *Relay) ClientCount() int {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	count, err := r.clientCount(ctx)
	if err != nil {
		slog.Warn("ClientCount failed", "error", err)
		return -1
	}
	return count
}

// Ping reports whether the relay goroutine is alive and responsive.
func (r *Relay) Ping(ctx context.Context) error {
	_, err := r.clientCount(ctx)
	return err
}

func (r *Relay) clientCount(ctx context.Context) (int, error) {
	replyCh := make(chan int, 1)
	select {
	case r.cmdCh <- clientCountCmd{replyChannel: replyCh}:
	case <-r.done:
		return 0, domain.ErrRelayStopped
	case <-ctx.Done():
		return 0, fmt.Errorf("relay busy: %w", ctx.Err())
	}

	select {
	case count := <-replyCh:
		return count, nil
	case <-r.done:
		return 0, domain.ErrRelayStopped
	case <-ctx.Done():
		return 0, fmt.Errorf("relay did not answer: %w", ctx.Err())
	}
}

// Stop shuts down the relay, closing all client connections.
// Blocks until the relay goroutine has exited or timeout is reached.
func (r *Relay) Stop() {
	if !r.submit(stopCmd{}) {
		return
	}

	timeout := r.clock.NewTimer(r.stopTimeout)
	defer timeout.Stop()

	select {
	case <-r.done:
		slog.Info("Relay stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Relay stop timeout exceeded", "timeout", r.stopTimeout)
		metrics.RelayStopTimeoutsTotal.Inc()
	}
}

// submit hands cmd to the relay goroutine. It reports false once the relay has stopped.
func (r *Relay) submit(cmd relayCmd) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *Relay) run() {
	defer close(r.done)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Relay panic recovered", "panic", rec)
			metrics.RelayPanicsTotal.Inc()
			r.closeAllClients(websocket.CloseInternalServerErr, "relay failure")
		}
	}()

	sweepTicker := r.clock.NewTicker(r.sweepInterval)
	defer sweepTicker.Stop()

	depthTicker := r.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			r.recordChannelDepth()

		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				r.handleRegister(c)
			case unregisterCmd:
				r.handleUnregister(c)
			case publishCmd:
				r.handlePublish(c)
			case sweepCmd:
				c.replyChannel <- r.sweeper.sweep(r.registry)
			case clientCountCmd:
				c.replyChannel <- r.registry.len()
			case stopCmd:
				r.handleStop()
				return
			default:
				slog.Warn("Relay received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}

		case <-sweepTicker.Chan():
			r.sweeper.sweep(r.registry)
		}
	}
}

func (r *Relay) recordChannelDepth() {
	depth := len(r.cmdCh)
	metrics.RelayCommandChannelDepth.Set(float64(depth))

	if depth*100 > cap(r.cmdCh)*depthWarnPercent {
		slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(r.cmdCh))
	}
}

func (r *Relay) handleRegister(c registerCmd) {
	if existing, ok := r.registry.get(c.connection); ok {
		c.replyChannel <- existing.id
		return
	}

	id := uuid.NewString()
	logger := logging.WithConnection(id, c.connection.RemoteAddr().String())
	cl := &client{
		id:          id,
		token:       c.token,
		connectedAt: r.clock.Now(),
		writer:      newClientWriter(c.connection, r.clock, logger),
		logger:      logger,
	}
	r.registry.add(c.connection, cl)

	metrics.RelayConnectedClients.Inc()
	logger.Info("Client registered", "total_clients", r.registry.len())
	c.replyChannel <- id
}

func (r *Relay) handleUnregister(c unregisterCmd) {
	cl, ok := r.registry.remove(c.connection)
	if !ok {
		return
	}

	cl.writer.stop()
	r.recordDisconnect(cl)
	cl.logger.Info("Client disconnected", "remaining_clients", r.registry.len())
}

func (r *Relay) recordDisconnect(cl *client) {
	metrics.RelayConnectedClients.Dec()
	metrics.WebSocketConnectionDuration.Observe(r.clock.Since(cl.connectedAt).Seconds())
}

func (r *Relay) handlePublish(c publishCmd) {
	sender, ok := r.registry.get(c.from)
	if !ok {
		slog.Debug("Dropping message from unregistered connection", "remote_addr", c.from.RemoteAddr().String())
		return
	}

	start := r.clock.Now()
	sent, skipped := 0, 0

	r.registry.each(func(conn *websocket.Conn, cl *client) {
		if conn == c.from {
			return
		}
		if cl.writer.trySend(c.data) {
			sent++
		} else {
			skipped++
		}
	})

	metrics.RelayDeliveriesTotal.WithLabelValues("sent").Add(float64(sent))
	if skipped > 0 {
		metrics.RelayDeliveriesTotal.WithLabelValues("skipped").Add(float64(skipped))
		sender.logger.Debug("Skipped recipients that were not ready", "skipped", skipped)
	}
	metrics.RelayBroadcastDuration.Observe(r.clock.Since(start).Seconds())
}

func (r *Relay) handleStop() {
	slog.Info("Relay shutting down", "clients", r.registry.len())
	disconnected := r.closeAllClients(websocket.CloseGoingAway, "Server shutting down")
	slog.Info("Relay shutdown complete", "disconnected_clients", disconnected)
}

// closeAllClients closes every registered connection with the given code and reason.
// Used during panic recovery and graceful shutdown.
func (r *Relay) closeAllClients(code int, reason string) int {
	closed := 0
	r.registry.each(func(conn *websocket.Conn, cl *client) {
		r.registry.remove(conn)
		cl.writer.stopGraceful(code, reason, nil)
		r.recordDisconnect(cl)
		closed++
	})
	return closed
}
