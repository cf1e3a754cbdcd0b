package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mfa-probe/mfa-probe/api"
	"github.com/mfa-probe/mfa-probe/config"
	"github.com/mfa-probe/mfa-probe/stats"
)

func newCleanupUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-users <username|email>...",
		Short: "Hard-delete test users in batches using the admin account",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireAdmin(); err != nil {
				return err
			}

			logger := slog.Default()
			collector := stats.NewCollector()
			defer logSummary(logger, "cleanup finished", collector)

			admin, err := newAdmin(cfg, logger, collector)
			if err != nil {
				return err
			}
			return admin.CleanUp(cmd.Context(), api.Usernames(args...))
		},
	}
}

func newAPIClient(cfg config.Config, logger *slog.Logger) (*api.Client, error) {
	return api.NewClient(api.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
		Debug:   cfg.LogLevel == "debug",
		Logger:  logger,
	})
}

func newAdmin(cfg config.Config, logger *slog.Logger, recorder stats.Recorder) (*api.Admin, error) {
	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return api.NewAdmin(client, cfg.AdminUser, cfg.AdminPass,
		api.WithBatchSize(cfg.BatchSize),
		api.WithAdminLogger(logger),
		api.WithAdminRecorder(recorder),
	)
}
