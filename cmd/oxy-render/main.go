// Command oxy-render renders a demo scene in a window, benchmarks the frame loop headless, or
// prints the effective configuration.
package main

import (
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-render/engine/config"
	"github.com/Carmen-Shannon/oxy-render/engine/logging"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "oxy-render",
		Short:        "Render-graph based real-time renderer",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (.toml, .yaml or .yml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCommand(flags),
		newBenchCommand(flags),
		newConfigCommand(flags),
	)
	return root
}

// load reads the config file, or the defaults when none is given, and installs the logger.
func (f *rootFlags) load() (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Open(f.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	logging.SetLogger(logging.NewText(cfg.LogLevel))
	return cfg, nil
}

func newConfigCommand(flags *rootFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			f, err := config.FormatNamed(format)
			if err != nil {
				return err
			}
			if err := cfg.Write(cmd.OutOrStdout(), f); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "toml", "output format (toml or yaml)")
	return cmd
}
