// Package commands holds the doussel command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/nikhil/doussel/internal/config"
	"github.com/nikhil/doussel/internal/logger"
)

// NewRootCommand creates the doussel root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "doussel",
		Short:         "Doussel real-estate and rental management backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewJobsCommand())

	return cmd
}

// loadConfig reads the configuration and applies the logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Configure(cfg.AppEnv, cfg.LogLevel)
	return cfg, nil
}
