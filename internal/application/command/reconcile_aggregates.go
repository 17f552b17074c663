package command

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/infrastructure/metrics"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE AGGREGATES COMMAND
// Recomputes derived counters from source rows. Safe to run at any time and
// concurrently with live traffic.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileAggregatesCommand reconciles a single course path.
type ReconcileAggregatesCommand struct {
	CoursePathID string `field:"coursePathId" validate:"required"`
}

// ReconcileAllStats summarizes a sweep.
type ReconcileAllStats struct {
	Checked  int64
	Repaired int64
	Failed   int64
}

// ReconcileAggregatesHandler handles reconciliation of one or all paths.
type ReconcileAggregatesHandler struct {
	paths      coursepath.Repository
	aggregates coursepath.AggregateStore
	publisher  shared.EventPublisher
	log        *logger.Logger

	batchSize   int
	concurrency int
}

// NewReconcileAggregatesHandler creates a new ReconcileAggregatesHandler.
func NewReconcileAggregatesHandler(
	paths coursepath.Repository,
	aggregates coursepath.AggregateStore,
	publisher shared.EventPublisher,
	log *logger.Logger,
	batchSize int,
) *ReconcileAggregatesHandler {
	if batchSize <= 0 {
		batchSize = 200
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ReconcileAggregatesHandler{
		paths:       paths,
		aggregates:  aggregates,
		publisher:   publisher,
		log:         log.With(logger.Component("reconcile")),
		batchSize:   batchSize,
		concurrency: 4,
	}
}

// Handle reconciles one path.
func (h *ReconcileAggregatesHandler) Handle(ctx context.Context, cmd ReconcileAggregatesCommand) (*coursepath.ReconcileResult, error) {
	if err := validateCommand("coursepath", "Reconcile", cmd); err != nil {
		return nil, err
	}
	res, err := h.aggregates.Reconcile(ctx, cmd.CoursePathID)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	if !res.Repaired {
		metrics.ReconcileRuns.WithLabelValues("clean").Inc()
		return &res, nil
	}

	metrics.ReconcileRuns.WithLabelValues("repaired").Inc()
	h.log.Warn("aggregates repaired",
		logger.CoursePathID(res.CoursePathID),
		logger.Any("before", res.Before),
		logger.Any("after", res.After),
	)
	publishAll(ctx, h.publisher, shared.NewAggregatesChangedEvent(
		res.CoursePathID, res.After.EnrollmentCount, res.After.ReviewCount, true))
	return &res, nil
}

// HandleAll sweeps every course path in id order. Per-path failures are
// counted and logged; only listing errors and cancellation abort the sweep.
func (h *ReconcileAggregatesHandler) HandleAll(ctx context.Context) (ReconcileAllStats, error) {
	var checked, repaired, failed atomic.Int64
	after := ""

	for {
		ids, err := h.paths.ListIDsAfter(ctx, after, h.batchSize)
		if err != nil {
			return ReconcileAllStats{}, err
		}
		if len(ids) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(h.concurrency)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				res, err := h.Handle(gctx, ReconcileAggregatesCommand{CoursePathID: id})
				checked.Add(1)
				switch {
				case err != nil && gctx.Err() != nil:
					return gctx.Err()
				case err != nil:
					failed.Add(1)
					h.log.Error("reconcile failed", logger.CoursePathID(id), logger.Err(err))
				case res.Repaired:
					repaired.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return ReconcileAllStats{}, err
		}

		after = ids[len(ids)-1]
		if len(ids) < h.batchSize {
			break
		}
	}

	stats := ReconcileAllStats{Checked: checked.Load(), Repaired: repaired.Load(), Failed: failed.Load()}
	h.log.Info("reconcile sweep finished",
		logger.Int64("checked", stats.Checked),
		logger.Int64("repaired", stats.Repaired),
		logger.Int64("failed", stats.Failed),
	)
	return stats, nil
}
