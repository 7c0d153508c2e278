package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"backlinks/internal/db"
	"backlinks/internal/models"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a single run in the foreground",
	Long: `Executes one run synchronously and prints its summary.

Pass --run to (re)execute an existing pending or failed run, or --domain to
enqueue a fresh run for a domain and execute it immediately.`,
	RunE: runRunCmd,
}

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Re-aggregate and re-score a stored run",
	Long:  "Recomputes risk and quality scores for every backlink of a run and the run risk in its summary. Action statuses that are already set are kept.",
	RunE:  runRescoreCmd,
}

var (
	runRunID    string
	runDomainID string
	rescoreRun  string
)

func init() {
	runCmd.Flags().StringVar(&runRunID, "run", "", "ID of a pending or failed run to execute")
	runCmd.Flags().StringVar(&runDomainID, "domain", "", "ID of a domain to enqueue and execute a run for")
	runCmd.MarkFlagsMutuallyExclusive("run", "domain")
	runCmd.MarkFlagsOneRequired("run", "domain")

	rescoreCmd.Flags().StringVar(&rescoreRun, "run", "", "ID of the run to rescore")
	_ = rescoreCmd.MarkFlagRequired("run")

	rootCmd.AddCommand(runCmd, rescoreCmd)
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var runID uuid.UUID
	if runRunID != "" {
		if runID, err = uuid.Parse(runRunID); err != nil {
			return fmt.Errorf("invalid --run: %w", err)
		}
	} else {
		domainID, err := uuid.Parse(runDomainID)
		if err != nil {
			return fmt.Errorf("invalid --domain: %w", err)
		}
		domain, err := a.db.GetDomain(ctx, domainID)
		if err != nil {
			return err
		}
		run, err := a.db.EnqueueRun(ctx, domain.ID, a.cfg.Provider, domain.Settings)
		if err != nil {
			if errors.Is(err, db.ErrActiveRunExists) {
				return fmt.Errorf("domain %s already has an active run", domain.Host)
			}
			return err
		}
		runID = run.ID
	}

	run, err := a.orchestrator.Execute(ctx, runID)
	if err != nil {
		return err
	}
	printSummary(cmd, run)
	return nil
}

func runRescoreCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := uuid.Parse(rescoreRun)
	if err != nil {
		return fmt.Errorf("invalid --run: %w", err)
	}

	res, err := a.orchestrator.Rescore(ctx, id)
	if err != nil {
		return err
	}
	cmd.Printf("Rescored %d backlinks across %d referring domains, run risk %d\n",
		res.Backlinks, res.RefDomains, res.RiskScore)
	return nil
}

func printSummary(cmd *cobra.Command, run *models.Run) {
	cmd.Printf("Run %s %s\n", run.ID, run.Status)
	if s := run.Summary; s != nil {
		cmd.Printf("  backlinks:   %d (follow %d, nofollow %d)\n", s.TotalBacklinks, s.Follow, s.Nofollow)
		cmd.Printf("  ref domains: %d\n", s.RefDomains)
		cmd.Printf("  anchors:     %d\n", s.AnchorsTotal)
		cmd.Printf("  risk score:  %d\n", s.RiskScore)
		cmd.Printf("  delta:       +%d/-%d links, +%d/-%d ref domains\n",
			s.NewLinks, s.LostLinks, s.NewRefDomains, s.LostRefDomains)
	}
}
