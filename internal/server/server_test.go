package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/uwrealitylabs/humanoid-server/internal/broadcast"
	"github.com/uwrealitylabs/humanoid-server/internal/payload"
	"github.com/uwrealitylabs/humanoid-server/internal/platform/config"
	"github.com/uwrealitylabs/humanoid-server/internal/token"
)

// testEnv wires a Server to a real relay and token store. Token validity
// follows tokenClock, a fake clock; everything touching socket deadlines
// runs on the real clock.
type testEnv struct {
	srv        *Server
	cfg        *config.Config
	tokens     *token.Store
	tokenClock *clockwork.FakeClock
	relay      *broadcast.Relay
}

type testSetup struct {
	cfg          *config.Config
	healthChecks []HealthCheck
}

type testOption func(*testSetup)

func withConfig(fn func(*config.Config)) testOption {
	return func(s *testSetup) { fn(s.cfg) }
}

func withHealthChecks(checks ...HealthCheck) testOption {
	return func(s *testSetup) { s.healthChecks = checks }
}

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "test",
		Port:                    "0",
		TokenTTL:                time.Hour,
		ShortTokenTTL:           5 * time.Second,
		EnableShortTokens:       true,
		TokenPurgeInterval:      time.Minute,
		TokenPurgeGrace:         time.Hour,
		SweepInterval:           time.Hour,
		WebSocketPath:           "/ws",
		PayloadSchema:           config.SchemaObject,
		PositionsLength:         17,
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     100,
		ConnectionRatePerSecond: 1000,
		ConnectionRateBurst:     1000,
		TokenRatePerSecond:      1000,
		TokenRateBurst:          1000,
		ShutdownTimeout:         time.Second,
	}
}

func newTestServer(t *testing.T, opts ...testOption) *testEnv {
	t.Helper()

	setup := &testSetup{cfg: testConfig()}
	for _, opt := range opts {
		opt(setup)
	}

	tokenClock := clockwork.NewFakeClock()
	tokens := token.NewStore(tokenClock, setup.cfg.TokenPurgeGrace)

	relay := broadcast.NewRelay(tokens, payload.Object(), clockwork.NewRealClock(), setup.cfg.SweepInterval)
	t.Cleanup(relay.Stop)

	srv := NewServer(setup.cfg, tokens, relay, clockwork.NewRealClock(), setup.healthChecks)

	return &testEnv{
		srv:        srv,
		cfg:        setup.cfg,
		tokens:     tokens,
		tokenClock: tokenClock,
		relay:      relay,
	}
}

// start serves the router on a loopback listener and returns the WebSocket URL.
func (e *testEnv) start(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(e.srv.Handler())
	t.Cleanup(ts.Close)
	return strings.Replace(ts.URL, "http://", "ws://", 1) + e.cfg.WebSocketPath
}

func (e *testEnv) issue(t *testing.T) string {
	t.Helper()
	tok, err := e.tokens.Issue(e.cfg.TokenTTL)
	require.NoError(t, err)
	return tok.Value
}

func dialWithAuth(wsURL, authorization string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if authorization != "" {
		header.Set("Authorization", authorization)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

func dialBearer(t *testing.T, wsURL, tok string) *websocket.Conn {
	t.Helper()
	conn, _, err := dialWithAuth(wsURL, "Bearer "+tok)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}
