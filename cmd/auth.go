package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmuoria/resume-feedback-agent/internal/ingestion"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize Gmail access and save the OAuth token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log, cfg, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if err := cfg.ValidateMail(); err != nil {
			return err
		}

		if err := ingestion.Authorize(cmd.Context(), cfg.Gmail.CredentialsPath, cfg.Gmail.TokenPath, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
			return err
		}

		log.Info("token saved", zap.String("path", cfg.Gmail.TokenPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}
