package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/onboarding/modules/onboarding/infrastructure/persistence"
	"github.com/iota-uz/onboarding/pkg/workqueue/pgbroker"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the onboarding tables (and the queue tables when QUEUE_BROKER=postgres)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := openEnv()
			defer e.close()

			ctx, err := e.db(cmd.Context())
			if err != nil {
				return err
			}
			if err := persistence.Migrate(ctx); err != nil {
				return withCode(exitDB, fmt.Errorf("migrate: %w", err))
			}
			if e.conf.Queue.Broker == "postgres" {
				broker, err := e.queue(ctx)
				if err != nil {
					return err
				}
				if err := broker.(*pgbroker.Broker).EnsureSchema(ctx); err != nil {
					return withCode(exitDB, err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
