// Command agentcal serves one agent's calendar negotiation surface over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hupe1980/agentcal"
	"github.com/hupe1980/agentcal/internal/config"
	"github.com/hupe1980/agentcal/logging"
	"github.com/hupe1980/agentcal/server"
	"github.com/hupe1980/agentcal/store/sqlite"
	"github.com/rs/zerolog"
)

func main() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().
		Timestamp().
		Logger()

	cfg := config.Load()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	engine := agentcal.New(func(o *agentcal.Options) {
		o.Store = db
		o.Logger = logging.NewZerologAdapter(&logger)
	})

	srv := server.New(
		cfg.Server.Host+":"+cfg.Server.Port,
		engine.Tools(cfg.OwnerID),
		&logger,
	)

	errChan := make(chan error, 1)
	go func() {
		logger.Info().
			Str("address", srv.Server.Addr).
			Str("owner_id", cfg.OwnerID).
			Msg("Starting server")
		errChan <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server error")
		}
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server stopped")
}
