package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newReportCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the last rebuild report cached in Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.setup()
			if err != nil {
				return err
			}
			locker := newLocker(cfg)
			if locker == nil {
				return withCode(exitConfig, errors.New("REDIS_ADDR is not set"))
			}
			defer locker.Client.Close()
			b, err := locker.LastReport(cmd.Context())
			if err != nil {
				return withCode(exitDB, err)
			}
			if b == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no report cached")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}
