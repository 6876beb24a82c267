package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
)

func newSyncRegistriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-registries [organization name ...]",
		Short: "Load system programs and roles and refresh the custom ones of stored organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := openEnv()
			defer e.close()

			ctx, err := e.db(cmd.Context())
			if err != nil {
				return err
			}
			m, err := e.module()
			if err != nil {
				return err
			}
			if err := m.Initialize(ctx); err != nil {
				return withCode(exitUpstream, fmt.Errorf("initialize registries: %w", err))
			}

			var errs []error
			for _, name := range args {
				if err := m.SyncOrganization(ctx, name); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "synced %s\n", name)
			}
			err = errors.Join(errs...)
			if errors.Is(err, entity.ErrNotFound) {
				return withCode(exitValidation, err)
			}
			return withCode(exitUpstream, err)
		},
	}
}
