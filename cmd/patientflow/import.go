package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/luknerlumina/patientflow/internal/application/services"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Merge a schedule export into a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			conflict, _ := cmd.Flags().GetString("conflict")
			return runImport(cmd.Context(), args[0], session, services.ConflictResolution(conflict))
		},
	}
	cmd.Flags().String("session", "", "session date (YYYY-MM-DD), defaults to today in the clinic time zone")
	cmd.Flags().String("conflict", string(services.ConflictSourceWins), "conflict resolution: source_wins or target_wins")
	return cmd
}

func runImport(ctx context.Context, path, session string, conflict services.ConflictResolution) error {
	if ctx == nil {
		ctx = context.Background()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schedule file: %w", err)
	}
	var records []services.ScheduleRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("failed to parse schedule file: %w", err)
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

	if _, err := a.persistence.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore session %s: %w", a.sessionDate, err)
	}

	summary, err := a.importer.ImportBatch(ctx, a.sessionDate, records, services.ImportOptions{ConflictResolution: conflict})
	if err != nil {
		return err
	}
	if err := a.persistence.Flush(ctx); err != nil {
		return fmt.Errorf("failed to save session %s: %w", a.sessionDate, err)
	}

	log.Info().
		Str("session_date", summary.SessionDate).
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("unchanged", summary.Unchanged).
		Int("failed", summary.Failed).
		Msg("schedule import complete")
	for _, e := range summary.Errors {
		log.Warn().Int("index", e.Index).Str("external_id", e.ExternalID).Msg(e.Message)
	}
	return nil
}
