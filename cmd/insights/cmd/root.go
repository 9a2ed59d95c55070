package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"insights-backend/lib/configutil"
	"insights-backend/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "insights",
	Short: "insights collects organization pages, their posts and people into a local database.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)
		if verbose {
			slog.DebugContext(cmd.Context(), "verbose logging enabled")
		}

		config, err := configutil.ReadConfig[Config](configPath)
		if os.IsNotExist(err) {
			slog.Warn("no config file found, using defaults", "path", configPath)
			err = nil
		}
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		cmd.SetContext(withConfig(cmd.Context(), config.withDefaults()))
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "Configuration file, <name>.local.json5 next to it is merged over it.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging and http exchange dumps.")
}

type configKey struct{}

func withConfig(ctx context.Context, config Config) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

func configFrom(ctx context.Context) Config {
	return ctx.Value(configKey{}).(Config)
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
