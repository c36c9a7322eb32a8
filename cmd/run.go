package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the 'run' subcommand, one full aggregation run.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs the pipeline once and writes the snapshot",
		Long: `Fetches every enabled source, merges the records and replaces the snapshot
file. Failing sources are reported but do not fail the command; configuration
or persist errors do.`,
		Args: cobra.NoArgs,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	summary, err := appInstance.Runner().Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}
	if len(summary.FailedSources) > 0 {
		appInstance.Logger().Warn("Some sources failed", zap.Strings("sources", summary.FailedSources))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
