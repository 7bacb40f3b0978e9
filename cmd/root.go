package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fmuoria/resume-feedback-agent/internal/config"
	"github.com/fmuoria/resume-feedback-agent/internal/export"
	"github.com/fmuoria/resume-feedback-agent/internal/ingestion"
	"github.com/fmuoria/resume-feedback-agent/internal/logger"
)

const (
	app = config.AppName
)

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "resume-agent scores emailed resumes against a job description and replies with feedback",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-agent.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

// setup builds the logger and loads the config every command needs
func setup() (*zap.Logger, *config.Config, error) {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return nil, nil, fmt.Errorf("creating a logger: %w", err)
	}

	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, nil, err
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("config loaded", zap.String("file", used))
	}

	return log, cfg, nil
}

func gmailConfig(cfg *config.Config) ingestion.GmailConfig {
	return ingestion.GmailConfig{
		CredentialsPath:   cfg.Gmail.CredentialsPath,
		TokenPath:         cfg.Gmail.TokenPath,
		User:              cfg.Gmail.User,
		Query:             cfg.Gmail.Query,
		From:              cfg.Gmail.From,
		RequestsPerSecond: cfg.Gmail.RequestsPerSecond,
		Burst:             cfg.Gmail.Burst,
	}
}

// buildSinks opens every configured run log sink. The returned func releases them.
func buildSinks(cfg *config.Config) (export.MultiSink, func(), error) {
	var sinks export.MultiSink
	closeFn := func() {}

	if cfg.Output.CSV != "" {
		sinks = append(sinks, export.CSVSink{Path: cfg.Output.CSV})
	}
	if cfg.Output.XLSX != "" {
		sinks = append(sinks, export.XLSXSink{Path: cfg.Output.XLSX})
	}
	if cfg.Output.SQLite != "" {
		db, err := export.NewSQLiteSink(cfg.Output.SQLite)
		if err != nil {
			return nil, closeFn, fmt.Errorf("opening run log database: %w", err)
		}
		sinks = append(sinks, db)
		closeFn = func() { db.Close() }
	}

	return sinks, closeFn, nil
}

// runHistory returns the SQLite sink among sinks, if one is configured
func runHistory(sinks export.MultiSink) (*export.SQLiteSink, bool) {
	for _, s := range sinks {
		if db, ok := s.(*export.SQLiteSink); ok {
			return db, true
		}
	}
	return nil, false
}
