// Package cli provides the crmsync command-line interface.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tripbuilder/crmsync/internal/api"
	"tripbuilder/crmsync/internal/config"
	"tripbuilder/crmsync/internal/logging"
)

// ExitError carries a non-zero process exit code out of a command.
type ExitError struct {
	Code int
	Msg  string
}

func (e *ExitError) Error() string {
	return e.Msg
}

var commandStartTime time.Time

var rootCmd = &cobra.Command{
	Use:   "crmsync",
	Short: "Bidirectional sync between the trip database and the CRM",
	Long: `Bidirectional sync between the trip database and the CRM

Configuration comes from the environment, optionally layered over the YAML
file named by CRMSYNC_CONFIG. Every command writes a sync_runs row for each
import or push batch it performs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		commandStartTime = time.Now()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Info("Command finished",
			"command", cmd.Name(),
			"duration", time.Since(commandStartTime).Truncate(time.Millisecond),
		)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(pushPendingCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(pullCmd)
}

// Execute runs the CLI until ctx is cancelled.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// setup loads the configuration, starts logging and wires the engine.
// Callers must Close the returned dependencies.
func setup(needRemote bool) (*api.Dependencies, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logging.Init(cfg.AppEnv, cfg.LogFile); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	if needRemote {
		if err := cfg.RequireRemote(); err != nil {
			return nil, err
		}
	}

	deps, err := api.InitDependencies(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return deps, nil
}

func closeDeps(deps *api.Dependencies) {
	if err := deps.Close(); err != nil {
		logging.Warn("Failed to close connections", "error", err)
	}
	_ = logging.Close()
}

// requireFieldMap stops commands that read or write mapped columns while the
// field map failed to load. discover and check run without it.
func requireFieldMap(deps *api.Dependencies) error {
	if deps.RegistryErr == nil {
		return nil
	}
	return &ExitError{
		Code: 2,
		Msg:  fmt.Sprintf("field map is not usable, run `crmsync discover` first: %v", deps.RegistryErr),
	}
}
