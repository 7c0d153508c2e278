package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"backlinks/internal/models"
	"backlinks/internal/risk"
	"backlinks/internal/scoring"
)

// RescoreResult reports a rescoring pass and the run risk it produced.
type RescoreResult struct {
	scoring.RescoreResult
	RiskScore int
}

// Rescore scores a finished run again under the current policy and writes
// the new run risk into its summary. Pending and running runs are rejected
// with ErrRunNotRunnable.
func (o *Orchestrator) Rescore(ctx context.Context, runID uuid.UUID) (*RescoreResult, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == models.RunStatusPending || run.Status == models.RunStatusRunning {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunNotRunnable, runID, run.Status)
	}

	res, err := o.rescorer.Run(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}
	runRisk, err := o.runRisk(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := o.store.UpdateRunRiskScore(ctx, runID, runRisk); err != nil {
		return nil, fmt.Errorf("updating run risk score: %w", err)
	}
	return &RescoreResult{RescoreResult: *res, RiskScore: runRisk}, nil
}

func (o *Orchestrator) runRisk(ctx context.Context, runID uuid.UUID) (int, error) {
	scores, err := o.store.ListBacklinkRiskScores(ctx, runID)
	if err != nil {
		return 0, fmt.Errorf("loading risk scores: %w", err)
	}
	return risk.RunScore(scores), nil
}
