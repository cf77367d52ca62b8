// Package cli holds the evcal command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"evcal/internal/config"
	appLog "evcal/internal/log"
)

const defaultConfigPath = "./evcal.yaml"

// NewRootCommand builds the top-level command with its subcommands.
func NewRootCommand(ctx context.Context) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "evcal",
		Short:         "Event calendar admin panel.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to config file")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
		appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
		return cfg, nil
	}

	cmd.AddCommand(
		newServeCommand(ctx, load),
		newSnapshotCommand(ctx, load),
		newHashPasswordCommand(),
	)
	return cmd
}

// Main runs the command tree and exits non-zero on failure.
func Main(ctx context.Context) {
	if err := NewRootCommand(ctx).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
