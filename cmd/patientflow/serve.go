package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/luknerlumina/patientflow/internal/api/handlers"
	"github.com/luknerlumina/patientflow/internal/api/routes"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the patient flow HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			return runServe(cmd.Context(), session)
		},
	}
	cmd.Flags().String("session", "", "session date (YYYY-MM-DD), defaults to today in the clinic time zone")
	return cmd
}

func runServe(parent context.Context, session string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := newApp(ctx, cfg, session)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Warn().Err(err).Msg("error releasing resources")
		}
	}()

	restored, err := a.persistence.Restore(ctx)
	if err != nil {
		log.Warn().Err(err).Str("session_date", a.sessionDate).Msg("failed to restore session, starting empty")
	} else {
		log.Info().Int("patients", restored).Str("session_date", a.sessionDate).Msg("session restored")
	}

	go a.clock.Run(ctx, cfg.Clock.TickInterval)

	router := routes.NewRouter(
		handlers.NewPatientHandler(a.store, a.persistence),
		handlers.NewClockHandler(a.clock),
		handlers.NewScheduleHandler(a.importer, a.sessionDate),
		handlers.NewSSEHandler(a.gateway, a.bus),
		handlers.NewHealthHandler(a.checks, a.persistence),
		cfg.Server.AllowedOrigins,
		a.metrics,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := a.persistence.Flush(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush pending session save")
	}

	log.Info().Msg("server exited")
	return nil
}
