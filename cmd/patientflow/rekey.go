package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func rekeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rekey",
		Short: "Re-encrypt a stored session with the current key version",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			return runRekey(cmd.Context(), session)
		},
	}
	cmd.Flags().String("session", "", "session date (YYYY-MM-DD), defaults to today in the clinic time zone")
	return cmd
}

func runRekey(ctx context.Context, session string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a, err := newApp(ctx, cfg, session)
	if err != nil {
		return err
	}
	defer a.close()

	rotated, err := a.gateway.Rekey(ctx, a.sessionDate)
	if err != nil {
		return fmt.Errorf("failed to rekey session %s: %w", a.sessionDate, err)
	}
	log.Info().Str("session_date", a.sessionDate).Bool("rotated", rotated).Msg("rekey complete")
	return nil
}
