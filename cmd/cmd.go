// Package cmd holds the mfaprobe sub-commands.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mfa-probe/mfa-probe/stats"
)

// Register attaches every sub-command to root. Shared flags must already be
// registered on root with config.RegisterFlags.
func Register(root *cobra.Command) {
	root.AddCommand(
		newTOTPCmd(),
		newQRSecretCmd(),
		newMailCmd(),
		newCleanupUsersCmd(),
		newEnrollCmd(),
	)
}

func logSummary(logger *slog.Logger, msg string, collector *stats.Collector) {
	attrs := append(collector.Snapshot().LogAttrs(), "duration", collector.Elapsed())
	logger.Info(msg, attrs...)
}
