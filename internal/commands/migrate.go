package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nikhil/doussel/internal/database"
	"github.com/nikhil/doussel/internal/database/migrations"
	"github.com/nikhil/doussel/internal/logger"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(r *migrations.Runner) error { return r.Down(steps) })
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(r *migrations.Runner) error { return r.Up() })
		},
	})
	cmd.AddCommand(down)
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(r *migrations.Runner) error {
				v, dirty, err := r.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
				return nil
			})
		},
	})
	return cmd
}

func withRunner(cmd *cobra.Command, fn func(*migrations.Runner) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.NewLogger("migrate")
	db, err := database.Open(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := migrations.NewRunner(db, log)
	if err != nil {
		return err
	}
	return fn(runner)
}
