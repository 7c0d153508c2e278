package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Execute queued runs without serving HTTP",
	Long:  "Polls for pending runs and executes them. With --once, drains the queue and exits.",
	RunE:  runWorker,
}

var workerOnce bool

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "Drain pending runs once and exit")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	worker := a.worker()
	if workerOnce {
		n := worker.Drain(ctx)
		a.logger.Info("worker drained queue", "runs", n)
		return nil
	}
	worker.Start(ctx)
	return nil
}
