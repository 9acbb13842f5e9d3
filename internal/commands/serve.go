package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nikhil/doussel/internal/app"
	"github.com/nikhil/doussel/internal/scheduler"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			go a.Hub.Run()
			defer a.Hub.Stop()

			router, limiter := a.Router()
			cleanupStop := make(chan struct{})
			defer close(cleanupStop)
			limiter.StartCleanup(time.Minute, cleanupStop)

			if cfg.SchedulerEnabled {
				sched := scheduler.New(a.Services.Rentals)
				if err := sched.Register(); err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
				a.Log.Info("Scheduler started", "jobs", sched.Entries())
			}

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.Log.Info("Server is running", "addr", cfg.HTTPAddr, "env", cfg.AppEnv)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.Log.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
