package main

import (
	"addr-hierarchy/internal/migrate"

	"github.com/spf13/cobra"
)

func newSchemaCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the source tables and an empty ADDRESSES table if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := g.setup()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := migrate.EnsureSchema(cmd.Context(), st.DB(), cfg.Database.Driver); err != nil {
				return withCode(exitDBWrite, err)
			}
			l.Info("schema_ready", "driver", cfg.Database.Driver)
			return nil
		},
	}
}
