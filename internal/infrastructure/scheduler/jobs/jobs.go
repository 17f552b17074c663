// Package jobs contains the scheduled maintenance jobs. Each job delegates to
// an application command so the same logic is reachable from the CLI.
package jobs

import (
	"context"
	"time"

	"github.com/skillmate/skillmate-core/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE AGGREGATES JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileAll is the part of the reconcile handler the job needs.
type ReconcileAll interface {
	HandleAll(ctx context.Context) (command.ReconcileAllStats, error)
}

// ReconcileAggregatesJob sweeps all course paths and repairs counter drift.
type ReconcileAggregatesJob struct {
	handler ReconcileAll
}

// NewReconcileAggregatesJob creates the job.
func NewReconcileAggregatesJob(handler ReconcileAll) *ReconcileAggregatesJob {
	return &ReconcileAggregatesJob{handler: handler}
}

func (j *ReconcileAggregatesJob) Name() string { return "reconcile_aggregates" }

func (j *ReconcileAggregatesJob) Description() string {
	return "Recompute enrollment, rating and sentiment aggregates from source rows"
}

// Run executes one sweep.
func (j *ReconcileAggregatesJob) Run(ctx context.Context) error {
	_, err := j.handler.HandleAll(ctx)
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE STALE DRAFTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ExpireDrafts is the part of the stale draft handler the job needs.
type ExpireDrafts interface {
	Handle(ctx context.Context, cmd command.ExpireStaleDraftsCommand) (int, error)
}

// ExpireStaleDraftsJob fails DRAFT paths whose generation was abandoned,
// e.g. by a crashed process.
type ExpireStaleDraftsJob struct {
	handler ExpireDrafts
	maxAge  time.Duration
	limit   int
}

// NewExpireStaleDraftsJob creates the job. maxAge should exceed the
// generation timeout so live generations are never touched.
func NewExpireStaleDraftsJob(handler ExpireDrafts, maxAge time.Duration, limit int) *ExpireStaleDraftsJob {
	return &ExpireStaleDraftsJob{handler: handler, maxAge: maxAge, limit: limit}
}

func (j *ExpireStaleDraftsJob) Name() string { return "expire_stale_drafts" }

func (j *ExpireStaleDraftsJob) Description() string {
	return "Mark abandoned DRAFT course paths as FAILED"
}

// Run executes one pass.
func (j *ExpireStaleDraftsJob) Run(ctx context.Context) error {
	_, err := j.handler.Handle(ctx, command.ExpireStaleDraftsCommand{MaxAge: j.maxAge, Limit: j.limit})
	return err
}
