package cmd

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfa-probe/mfa-probe/config"
	"github.com/mfa-probe/mfa-probe/mailbox"
	"github.com/mfa-probe/mfa-probe/mbox"
	"github.com/mfa-probe/mfa-probe/progress"
	"github.com/mfa-probe/mfa-probe/stats"
)

type mailOptions struct {
	subject  string
	folders  []string
	maxWait  time.Duration
	interval time.Duration
	skew     time.Duration
	keep     bool
	mboxPath string
	since    time.Duration
}

func newMailCmd() *cobra.Command {
	opts := &mailOptions{}

	cmd := &cobra.Command{
		Use:   "mail",
		Short: "Wait for a verification mail and print the code it carries",
	}

	defaults := mailbox.DefaultPollPolicy()
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.subject, "subject", "", "Subject of the expected message (substring match)")
	flags.StringArrayVar(&opts.folders, "folder", slices.Clone(mailbox.DefaultFolders), "Folder to search, repeatable")
	flags.DurationVar(&opts.maxWait, "max-wait", defaults.MaxWait, "Give up after this long")
	flags.DurationVar(&opts.interval, "interval", defaults.Interval, "Pause between search passes")
	flags.DurationVar(&opts.skew, "skew", 0, "Accept messages received up to this long before the command started")
	flags.BoolVar(&opts.keep, "keep", false, "Leave the message unread and in place")
	flags.StringVar(&opts.mboxPath, "mbox", "", "Read from an mbox file instead of the IMAP server")
	flags.DurationVar(&opts.since, "since", 0, "With --mbox, only consider messages dated within this window")
	_ = cmd.MarkPersistentFlagRequired("subject")

	cmd.AddCommand(
		newMailExtractCmd(opts, "otp", "Print the 6-digit code", mailbox.ExtractOTP),
		newMailExtractCmd(opts, "token", "Print the UUID token", mailbox.ExtractUUID),
	)
	return cmd
}

func newMailExtractCmd(opts *mailOptions, use, short string, extract func(string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			var content string
			if opts.mboxPath != "" {
				content, err = mboxContent(cfg, opts)
			} else {
				content, err = imapContent(cmd, cfg, opts)
			}
			if err != nil {
				return err
			}

			value, err := extract(content)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func imapContent(cmd *cobra.Command, cfg config.Config, opts *mailOptions) (string, error) {
	if err := cfg.RequireMailbox(); err != nil {
		return "", err
	}

	logger := slog.Default()
	collector := stats.NewCollector()
	spinner := progress.Start(opts.subject, cmd.ErrOrStderr(), cfg.LogLevel)
	defer spinner.Stop()

	poller := mailbox.NewPoller(mailbox.Account{
		Host:               cfg.IMAPHost,
		Port:               cfg.IMAPPort,
		Username:           cfg.IMAPUser,
		Password:           cfg.IMAPPass,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		DialTimeout:        cfg.DialTimeout,
		CommandTimeout:     cfg.CommandTimeout,
	}, mailbox.WithLogger(logger), mailbox.WithRecorder(stats.Multi(collector, spinner)))
	defer logSummary(logger, "mail poll finished", collector)

	policy := mailbox.PollPolicy{
		MaxWait:       opts.maxWait,
		Interval:      opts.interval,
		MarkSeen:      !opts.keep,
		Delete:        !opts.keep,
		SkewTolerance: opts.skew,
	}
	return poller.FetchContent(cmd.Context(), opts.subject, opts.folders, policy)
}

func mboxContent(cfg config.Config, opts *mailOptions) (string, error) {
	var since time.Time
	if opts.since > 0 {
		since = time.Now().Add(-opts.since)
	}
	msg, err := mbox.FindLatest(opts.mboxPath, opts.subject, cfg.IMAPUser, since)
	if err != nil {
		return "", err
	}
	slog.Debug("mbox message selected", "id", msg.ID, "uid", msg.UID, "received", msg.ReceivedAt)
	return mailbox.TextContent(msg.Raw)
}
