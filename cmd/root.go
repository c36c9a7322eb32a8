// Package cmd defines and implements the CLI commands for the aggregator executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholarship-aggregator/internal/app"
	"github.com/JakeFAU/scholarship-aggregator/internal/config"
	"github.com/JakeFAU/scholarship-aggregator/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// readOnlyAnnotation marks commands that only read configuration and the
// snapshot; they get an App without network clients or a browser.
const readOnlyAnnotation = "aggregator/read-only"

// newApp and newReadOnlyApp are the application factories. They're variables so
// tests can swap them.
var (
	newApp         = app.NewApp
	newReadOnlyApp = app.NewReadOnly
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "aggregator",
		Short: "Collects Indonesian scholarship announcements into one JSON snapshot.",
		Long: `aggregator visits a fixed set of scholarship listing sites, follows each
announcement to its detail page, normalizes the fields and writes one merged,
deduplicated, newest-first JSON file. It can run once or serve an HTTP API that
triggers runs and exposes the current snapshot.`,
		SilenceUsage: true,

		// Builds the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			factory := newApp
			if cmd.Annotations[readOnlyAnnotation] == "true" {
				factory = newReadOnlyApp
			}
			appInstance, err := factory(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, err := resolveApp(cmd.Context()); err == nil {
				appInstance.Close()
				_ = appInstance.Logger().Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")

	cmd.AddCommand(newRunCmd(), newServeCmd(), newListCmd(), newSourcesCmd())
	return cmd
}

// resolveApp fetches the App stored by PersistentPreRunE.
func resolveApp(ctx context.Context) (*app.App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("command context is nil")
	}
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Error("Command execution failed", zap.Error(err))
		_ = zap.L().Sync()
		os.Exit(1)
	}
}
