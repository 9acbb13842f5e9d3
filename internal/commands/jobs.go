package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nikhil/doussel/internal/app"
	rentalService "github.com/nikhil/doussel/internal/service/rentals"
)

// NewJobsCommand runs the rent jobs once, for external schedulers.
func NewJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run a scheduled job once",
	}

	var date string
	generate := &cobra.Command{
		Use:   "generate-rentals",
		Short: "Create the monthly rent transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := time.Now()
			if date != "" {
				parsed, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				target = parsed
			}
			return withRentals(cmd, func(rs *rentalService.RentalService) (interface{}, error) {
				return rs.GenerateMonthly(cmd.Context(), target)
			})
		},
	}
	generate.Flags().StringVar(&date, "date", "", "any day of the target month (YYYY-MM-DD)")

	cmd.AddCommand(generate)
	cmd.AddCommand(&cobra.Command{
		Use:   "send-reminders",
		Short: "Email tenants with overdue rent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRentals(cmd, func(rs *rentalService.RentalService) (interface{}, error) {
				return rs.SendReminders(cmd.Context(), time.Now())
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "lease-alerts",
		Short: "Warn owners about leases ending in 6 or 3 months",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRentals(cmd, func(rs *rentalService.RentalService) (interface{}, error) {
				return rs.CheckLeaseExpirations(cmd.Context(), time.Now())
			})
		},
	})
	return cmd
}

func withRentals(cmd *cobra.Command, fn func(*rentalService.RentalService) (interface{}, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := fn(a.Services.Rentals)
	if err != nil {
		return err
	}
	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")
	return out.Encode(res)
}
