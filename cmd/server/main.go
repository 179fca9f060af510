package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/uwrealitylabs/humanoid-server/internal/broadcast"
	"github.com/uwrealitylabs/humanoid-server/internal/payload"
	"github.com/uwrealitylabs/humanoid-server/internal/platform/config"
	"github.com/uwrealitylabs/humanoid-server/internal/platform/logging"
	"github.com/uwrealitylabs/humanoid-server/internal/platform/version"
	"github.com/uwrealitylabs/humanoid-server/internal/server"
	"github.com/uwrealitylabs/humanoid-server/internal/token"
)

func runGracefulShutdown(cfg *config.Config, srv *server.Server, relay *broadcast.Relay, stopEviction func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		relay.Stop()
		stopEviction()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupValidator(cfg *config.Config) payload.Validator {
	if cfg.PayloadSchema == config.SchemaPositions {
		return payload.Positions(cfg.PositionsLength)
	}
	return payload.Object()
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	tokens := token.NewStore(clock, cfg.TokenPurgeGrace)
	stopEviction := tokens.StartEvictionTimer(cfg.TokenPurgeInterval)

	relay := broadcast.NewRelay(tokens, setupValidator(cfg), clock, cfg.SweepInterval)

	srv := server.NewServer(cfg, tokens, relay, clock, []server.HealthCheck{
		{Name: "relay", Check: relay.Ping},
	})

	done := runGracefulShutdown(cfg, srv, relay, stopEviction)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
