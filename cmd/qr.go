package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfa-probe/mfa-probe/qr"
	"github.com/mfa-probe/mfa-probe/totp"
)

func newQRSecretCmd() *cobra.Command {
	var withCode bool

	cmd := &cobra.Command{
		Use:   "qr-secret <image>",
		Short: "Decode an enrollment QR code image and print its secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			secret, err := qr.ExtractSecret(data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, secret)
			if withCode {
				code, err := totp.Now(secret)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, code)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withCode, "code", false, "Also print the current TOTP code")
	return cmd
}
