package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfa-probe/mfa-probe/totp"
)

func newTOTPCmd() *cobra.Command {
	var at int64

	cmd := &cobra.Command{
		Use:   "totp <secret>",
		Short: "Print the current TOTP code for a Base32 secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when := time.Now()
			if at > 0 {
				when = time.Unix(at, 0)
			}
			code, err := totp.ComputeCode(args[0], when)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}

	cmd.Flags().Int64Var(&at, "at", 0, "Unix time to compute the code for (default now)")
	return cmd
}
