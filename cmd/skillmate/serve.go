package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skillmate/skillmate-core/config"
	"github.com/skillmate/skillmate-core/internal/application/command"
	"github.com/skillmate/skillmate-core/internal/application/query"
	"github.com/skillmate/skillmate-core/internal/infrastructure/scheduler"
	httpapi "github.com/skillmate/skillmate-core/internal/interface/http"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

var serveWithScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API",
	Long: `Runs the REST API. Unless --scheduler=false is given, maintenance jobs
(aggregate reconciliation, stale draft expiry) run in the same process
when SCHEDULER_ENABLED is true.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithScheduler, "scheduler", true, "run maintenance jobs in this process")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting SkillMate Core API",
		logger.String("version", cfg.App.Version),
		logger.String("storage", cfg.Database.Driver),
		logger.String("generation_provider", cfg.Generation.Provider),
		logger.String("sentiment_provider", cfg.Sentiment.Provider),
	)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	deps, err := a.httpDependencies(ctx)
	if err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if serveWithScheduler && cfg.Scheduler.Enabled {
		sched, err = a.newScheduler()
		if err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.EnableMetrics = cfg.Observability.MetricsEnabled
	serverCfg.Debug = cfg.App.Debug

	server := httpapi.NewServer(serverCfg, deps)
	errCh := server.StartAsync()

	log.Info("SkillMate Core API is running", logger.String("address", cfg.HTTPAddr()))

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Error("scheduler shutdown failed", logger.Err(err))
		}
	}
	log.Info("shutdown completed successfully")
	return nil
}

// httpDependencies wires command and query handlers for the API.
func (a *app) httpDependencies(ctx context.Context) (httpapi.Dependencies, error) {
	generator, err := a.topicGenerator(ctx)
	if err != nil {
		return httpapi.Dependencies{}, err
	}
	classifier, err := a.sentimentClassifier(ctx)
	if err != nil {
		return httpapi.Dependencies{}, err
	}

	r := a.repos
	retries := a.cfg.Consistency.ConflictRetries

	genCfg := command.DefaultGenerateCoursePathHandlerConfig()
	genCfg.Timeout = a.cfg.Generation.Timeout
	genCfg.ConflictRetries = retries

	reviewCfg := command.DefaultSubmitReviewHandlerConfig()
	reviewCfg.SentimentTimeout = a.cfg.Sentiment.Timeout
	reviewCfg.ConflictRetries = retries
	reviewCfg.RequireEnrollment = a.cfg.Features.Enabled(config.FeatureReviewsNeedEnrolls)
	reviewCfg.ReconcileOnDrift = a.cfg.Features.Enabled(config.FeatureReconcileOnDrift)

	return httpapi.Dependencies{
		Generate:     command.NewGenerateCoursePathHandler(r.coursePaths, generator, a.keyCache, a.bus, a.log, genCfg),
		Enrollment:   command.NewEnrollmentHandler(r.coursePaths, r.enrollments, a.bus, a.log),
		CompleteStep: command.NewMarkTopicCompleteHandler(r.coursePaths, r.enrollments, r.progress, a.bus, a.log, retries, nil),
		SubmitReview: command.NewSubmitReviewHandler(
			r.coursePaths, r.enrollments, r.reviews, r.aggregates, classifier, a.bus, a.log, reviewCfg),
		HelpfulVote:  command.NewMarkReviewHelpfulHandler(r.reviews, a.bus, a.log),
		Catalogue:    command.NewCatalogueHandler(r.coursePaths, r.learningPaths, a.bus, a.log, retries, nil, nil),
		RegisterUser: command.NewRegisterUserHandler(r.users, a.log, nil),

		GetCoursePath:      query.NewGetCoursePathHandler(r.coursePaths, a.dtoCache, a.log),
		GetUserCoursePaths: query.NewGetUserCoursePathsHandler(r.coursePaths, r.enrollments),
		GetProgress:        query.NewGetProgressHandler(r.coursePaths, r.enrollments, r.progress),
		PathProgress:       query.NewGetLearningPathProgressHandler(r.learningPaths, r.coursePaths, r.progress),
		Browse:             query.NewCatalogueHandler(r.coursePaths, r.reviews, r.learningPaths),

		Features:      a.cfg.Features,
		Logger:        a.log,
		HealthChecker: a.health,
	}, nil
}

// waitForSignal blocks the worker until SIGINT, SIGTERM or SIGHUP.
func waitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	select {
	case sig := <-sigCh:
		return sig
	case <-ctx.Done():
		return nil
	}
}
