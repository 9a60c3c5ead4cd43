package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-coach/internal/config"
	"github.com/lexiqai/voice-coach/internal/observability"
	"github.com/lexiqai/voice-coach/internal/store"
)

type storeSet struct {
	preferences store.PreferenceStore
	history     store.HistoryStore
	check       observability.HealthCheckFunc
	close       func()
}

// openStores uses PostgreSQL when a DSN is configured and the YAML file
// store otherwise.
func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storeSet, error) {
	if cfg.HistoryDSN != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pg, err := store.NewPostgresStore(connectCtx, cfg.HistoryDSN)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("Using PostgreSQL for preferences and history")
		return &storeSet{preferences: pg, history: pg, check: pg.Check, close: pg.Close}, nil
	}

	fs := store.NewFileStore(cfg.StorePath)
	logger.Info().Str("path", fs.Path()).Msg("Using file store for preferences and history")
	return &storeSet{preferences: fs, history: fs, check: fs.Check, close: func() {}}, nil
}

// serveDiagnostics runs the local /health, /ready and /metrics listener
// until ctx is done. A listener that cannot start is logged, not fatal.
func serveDiagnostics(ctx context.Context, addr string, checks map[string]observability.HealthCheckFunc, logger zerolog.Logger) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      observability.NewDiagnosticsMux(checks),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Diagnostics listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("Diagnostics listener failed")
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("diagnostics shutdown: %w", err)
		}
		return nil
	}
}
