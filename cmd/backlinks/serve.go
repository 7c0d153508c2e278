package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"backlinks/internal/jobs"
	"backlinks/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, dashboard, run worker and scheduler",
	RunE:  runServe,
}

var (
	serveNoWorker    bool
	serveNoScheduler bool
	serveMigrate     bool
)

func init() {
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "Do not execute queued runs in this process")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "Do not enqueue scheduled runs in this process")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "Apply database migrations on startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveMigrate {
		if err := a.db.RunMigrations(a.cfg.DatabaseURL); err != nil {
			return err
		}
		a.logger.Info("migrations completed successfully")
	}

	var sched *jobs.Scheduler
	if !serveNoScheduler && a.cfg.ScheduleCron != "" {
		if sched, err = jobs.NewScheduler(a.db, a.cfg.ScheduleCron, a.cfg.Provider, a.logger); err != nil {
			return err
		}
	}

	var limiterStorage fiber.Storage
	if a.redis != nil {
		limiterStorage = a.redis
	}
	srv := server.New(a.cfg, limiterStorage)
	srv.RegisterRoutes(a.db, a.quota)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")
		return srv.Shutdown()
	})

	if !serveNoWorker {
		worker := a.worker()
		g.Go(func() error {
			worker.Start(gctx)
			return nil
		})
	}

	if sched != nil {
		g.Go(func() error {
			return sched.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	a.logger.Info("server exited")
	return nil
}
