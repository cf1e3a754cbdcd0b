package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mfa-probe/mfa-probe/config"
)

func newEnrollCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "enroll-totp",
		Short: "Enable authenticator-app MFA for a user and print the enrolled secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg, slog.Default())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			token, err := client.AccessToken(ctx, username, password)
			if err != nil {
				return err
			}

			secret, err := client.EnrollAuthenticator(ctx, token)
			if err != nil {
				return err
			}

			slog.Info("authenticator app enrolled", "user", username)
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "user", "", "Username or email of the account to enroll")
	cmd.Flags().StringVar(&password, "password", "", "Password of the account to enroll")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
