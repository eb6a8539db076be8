package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewReplayCmd re-derives the sealed order of stored attempts from their seeds.
func NewReplayCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "replay ATTEMPT_ID...",
		Short: "Check that stored attempts reproduce from their seeds",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), *configPath, args, cmd.OutOrStdout())
		},
	}
}

func runReplay(ctx context.Context, configPath string, attemptIDs []string, out io.Writer) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()
	service := newService(deps, cfg, logger)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	mismatches := 0
	for _, id := range attemptIDs {
		report, err := service.ReplaySeal(ctx, id)
		if err != nil {
			return fmt.Errorf("replay %s: %w", id, err)
		}
		if !report.Match {
			mismatches++
			logger.Warn("sealed order does not reproduce", "attempt_id", id)
		}
		if err := enc.Encode(report); err != nil {
			return err
		}
	}
	if mismatches > 0 {
		return fmt.Errorf("%d of %d attempts did not reproduce", mismatches, len(attemptIDs))
	}
	return nil
}
