package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillmate/skillmate-core/internal/application/command"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// Worker отвечает за периодические задачи:
//   - сверка агрегатов с исходными строками (enrollments, reviews)
//   - перевод брошенных DRAFT путей в FAILED
//
// API-инстансы при этом запускаются с --scheduler=false.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run maintenance jobs without the API",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	log.Info("starting SkillMate Core worker",
		logger.String("reconcile_spec", cfg.Scheduler.ReconcileSpec),
		logger.String("stale_draft_spec", cfg.Scheduler.StaleDraftSpec),
		logger.Duration("stale_draft_after", cfg.StaleDraftAfter()),
	)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.newScheduler()
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("SkillMate Core worker is running")

	if sig := waitForSignal(ctx); sig != nil {
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	}

	// Stop waits for running jobs; a sweep interrupted by the timeout is
	// resumed from scratch on the next tick.
	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer stop()
	if err := sched.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE
// ══════════════════════════════════════════════════════════════════════════════

var reconcileCoursePathID string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recompute course path aggregates once",
	Long: `Recomputes enrollment, rating and sentiment aggregates from source rows
and repairs any drift. With --id only that course path is checked.

Examples:
  skillmate reconcile
  skillmate reconcile --id 3f1c...`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileCoursePathID, "id", "", "course path id (default: all paths)")
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	h := a.reconcileHandler()
	start := time.Now()

	if reconcileCoursePathID != "" {
		res, err := h.Handle(ctx, command.ReconcileAggregatesCommand{CoursePathID: reconcileCoursePathID})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s repaired=%t before=%+v after=%+v\n",
			res.CoursePathID, res.Repaired, res.Before, res.After)
		return nil
	}

	stats, err := h.HandleAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "checked=%d repaired=%d failed=%d in %s\n",
		stats.Checked, stats.Repaired, stats.Failed, time.Since(start).Round(time.Millisecond))
	if stats.Failed > 0 {
		return fmt.Errorf("%d course paths could not be reconciled", stats.Failed)
	}
	return nil
}
