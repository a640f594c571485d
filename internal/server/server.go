package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chromapicker/license-server/internal/logging"
	"github.com/chromapicker/license-server/internal/store"
	licstripe "github.com/chromapicker/license-server/internal/stripe"
	"github.com/rs/zerolog/log"
)

// Run starts the license server with graceful shutdown.
func Run(ctx context.Context, version string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "licensed",
	})

	log.Info().Str("version", version).Msg("Starting ChromaPicker license server")

	// Open license store
	st, err := store.NewLicenseStore(cfg.StoreDir())
	if err != nil {
		return fmt.Errorf("open license store: %w", err)
	}
	defer st.Close()

	// Build HTTP routes
	mux := http.NewServeMux()
	deps := &Deps{
		Config:  cfg,
		Store:   st,
		Issuer:  licstripe.NewIssuer(st),
		Version: version,
	}
	RegisterRoutes(mux, deps)

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Create derived context for background goroutines
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start metrics updater
	go runLicenseStatusMetrics(ctx, st)

	// Start server in background
	go func() {
		log.Info().Str("addr", addr).Msg("License server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Server failed")
		}
	}()

	// Signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down...")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	cancel()
	log.Info().Msg("License server stopped")
	return nil
}
