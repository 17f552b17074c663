// Package main - точка входа SkillMate Core.
//
// Один бинарник, несколько ролей:
//   - serve     REST API (и, опционально, планировщик в том же процессе)
//   - worker    только фоновые задачи: сверка агрегатов и просроченные черновики
//   - migrate   миграции схемы PostgreSQL
//   - reconcile разовая сверка агрегатов (одного пути или всех)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skillmate/skillmate-core/config"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

var (
	envFiles []string

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "skillmate",
	Short: "Course path lifecycle and aggregate consistency service",
	Long: `SkillMate Core generates AI course paths, tracks enrollment and
progress, and keeps per-path review aggregates consistent under
concurrent writes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFiles...)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log = setupLogger(cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before the environment (default .env)")

	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}
