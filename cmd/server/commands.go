package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jimdaga/family-shield/internal/auth"
	"github.com/jimdaga/family-shield/internal/database"
	"github.com/jimdaga/family-shield/internal/server"
	"github.com/jimdaga/family-shield/internal/streams"
	"github.com/jimdaga/family-shield/internal/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()

			if !skipMigrations {
				if err := database.RunMigrations(rt.db); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := rt.app(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			auth.InitProviders(rt.cfg, rt.logger)

			if rt.cfg.EmbeddedWorker {
				stopWorker, err := worker.Start(rt.cfg, app.WorkerServices())
				if err != nil {
					return err
				}
				defer stopWorker()

				stopScheduler, err := worker.StartScheduler(rt.cfg)
				if err != nil {
					return err
				}
				defer stopScheduler()
			}

			if rt.cfg.ActivityStreamEnable && rt.cfg.RedisURL != "" {
				stopConsumer, err := streams.StartActivityConsumer(rt.cfg.RedisURL, rt.db)
				if err != nil {
					rt.logger.Warn("Activity stream consumer disabled", "error", err)
				} else {
					defer stopConsumer()
				}
			}

			srv := &http.Server{
				Addr:              ":" + rt.cfg.Port,
				Handler:           server.NewRouter(app),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				rt.logger.Info("Starting server", "addr", srv.Addr, "embedded_worker", rt.cfg.EmbeddedWorker)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				rt.logger.Info("Shutting down server")
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply pending migrations on startup")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background task worker and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()

			app, err := rt.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			stopScheduler, err := worker.StartScheduler(rt.cfg)
			if err != nil {
				return err
			}
			defer stopScheduler()

			// Run blocks and handles its own signal interception
			return worker.Run(rt.cfg, app.WorkerServices())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage the database schema"}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()
			return database.RunMigrations(rt.db)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()
			return database.RollbackMigration(rt.db)
		},
	})

	return cmd
}

func newInactivityCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inactivity-check",
		Short: "Run one inactivity detector pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()

			app, err := rt.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Detector.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d triggered=%d\n", result.Processed, result.Triggered)
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert development fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()

			if rt.cfg.IsProduction() {
				return errors.New("refusing to seed a production database")
			}
			if err := database.SeedDevData(rt.db); err != nil {
				return err
			}
			rt.logger.Info("Development data seeded")
			return nil
		},
	}
}
