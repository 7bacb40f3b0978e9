package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fmuoria/resume-feedback-agent/internal/agent"
	"github.com/fmuoria/resume-feedback-agent/internal/config"
	"github.com/fmuoria/resume-feedback-agent/internal/ingestion"
)

var cleanResumes bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch resumes from Gmail, score them and email feedback",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntP("limit", "l", 10, "maximum number of messages to process")
	runCmd.Flags().Bool("dry-run", false, "score and log without sending any email")
	runCmd.Flags().IntP("workers", "w", 1, "number of resumes processed in parallel")
	runCmd.Flags().BoolVar(&cleanResumes, "clean", false, "remove previously downloaded resumes before fetching")

	viper.BindPFlag("batch-limit", runCmd.Flags().Lookup("limit"))
	viper.BindPFlag("dry-run", runCmd.Flags().Lookup("dry-run"))
	viper.BindPFlag("workers", runCmd.Flags().Lookup("workers"))
}

// newAgent wires the Gmail handler into an agent. A missing mailbox is only
// tolerated when allowOffline is set; the agent then refuses to run.
func newAgent(ctx context.Context, cfg *config.Config, log *zap.Logger, allowOffline bool) (*agent.Agent, error) {
	files := ingestion.NewFileHandler(cfg.ResumesDir)
	opts := agent.Options{Workers: cfg.Workers, DryRun: cfg.DryRun}

	gmail, err := ingestion.NewGmailHandler(ctx, gmailConfig(cfg), files, log)
	if err != nil {
		if !allowOffline {
			return nil, fmt.Errorf("initializing Gmail: %w", err)
		}
		log.Warn("mailbox disabled", zap.Error(err))
		return agent.New(nil, nil, files, cfg.JobDescription, opts, log), nil
	}

	return agent.New(gmail, gmail, files, cfg.JobDescription, opts, log), nil
}

func run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, cfg, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Info("starting the resume pipeline",
		zap.String("version", version),
		zap.Int("limit", cfg.BatchLimit),
		zap.Bool("dry_run", cfg.DryRun),
	)

	sinks, closeSinks, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	if cleanResumes {
		if err := ingestion.NewFileHandler(cfg.ResumesDir).ClearUploads(); err != nil {
			return err
		}
		log.Info("resumes directory cleared", zap.String("dir", cfg.ResumesDir))
	}

	a, err := newAgent(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	a.SetProgressCallback(func(current, total int, message string) {
		log.Debug(message, zap.Int("current", current), zap.Int("total", total))
	})

	runLog, runErr := a.Run(ctx, cfg.BatchLimit)
	if runLog == nil {
		return runErr
	}

	// ctx may already be cancelled; the log still has to reach the sinks
	if err := sinks.Write(context.WithoutCancel(ctx), runLog); err != nil {
		log.Error("writing run log", zap.Error(err))
	}

	if runErr != nil {
		return fmt.Errorf("run %s interrupted after %d delivered: %w", runLog.RunID, runLog.DeliveredCount(), runErr)
	}

	log.Info("resume pipeline completed",
		zap.String("run_id", runLog.RunID),
		zap.Int("processed", runLog.Len()),
		zap.Int("delivered", runLog.DeliveredCount()),
		zap.String("csv", cfg.Output.CSV),
	)
	if db, ok := runHistory(sinks); ok {
		log.Debug("run stored", zap.String("run_id", runLog.RunID), zap.String("db", db.Path()))
	}

	return nil
}
