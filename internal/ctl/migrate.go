package ctl

import (
	"context"
	"fmt"

	"clinicflow/pkg/config"

	"github.com/spf13/cobra"
)

func newMigrateCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [mongo|postgres]",
		Short:     "Create collections, tables and indexes",
		Long:      "Apply the queue schema to the given store, or to STORE_DRIVER when omitted. Safe to run repeatedly.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{config.StoreMongo, config.StorePostgres},
		RunE: func(cmd *cobra.Command, args []string) error {
			driver := ""
			if len(args) == 1 {
				driver = args[0]
			}
			return withEnv(cmd, open, driver, func(ctx context.Context, env *Env) error {
				if env.Migrate == nil {
					return fmt.Errorf("store %q has no schema to migrate", env.Config.StoreDriver)
				}
				if err := env.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migration completed for %s.\n", env.Config.StoreDriver)
				return nil
			})
		},
	}
}
