package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRevokeAllCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-all SUBJECT_ID",
		Short: "Revoke every refresh credential of a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.engine.RevokeAll(ctx, args[0])
			if err != nil {
				return err
			}
			opts.logger.Info("revoked", "subject", args[0], "count", n)
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %d refresh credentials for %s\n", n, args[0])
			return nil
		},
	}
}
