package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/onboarding/modules/onboarding/infrastructure/persistence"
)

func newDeadLettersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "Inspect and requeue work items that were not retried",
	}
	cmd.AddCommand(newDeadLettersListCmd())
	cmd.AddCommand(newDeadLettersRequeueCmd())
	return cmd
}

func newDeadLettersListCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letters, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := openEnv()
			defer e.close()

			ctx, err := e.db(cmd.Context())
			if err != nil {
				return err
			}
			letters, err := persistence.NewDeadLetterRepository().List(ctx, limit)
			if err != nil {
				return withCode(exitDB, err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(letters)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tENTITY\tATTEMPTS\tREASON\tLAST ERROR")
			for _, d := range letters {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", d.ID, d.Kind, d.EntityID, d.Attempts, d.Reason, d.LastError)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newDeadLettersRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue ID [ID ...]",
		Short: "Publish dead letters again with a fresh attempt count and delete them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, 0, len(args))
			for _, a := range args {
				id, err := uuid.Parse(a)
				if err != nil {
					return withCode(exitUsage, fmt.Errorf("invalid dead letter id %q: %w", a, err))
				}
				ids = append(ids, id)
			}

			e := openEnv()
			defer e.close()
			ctx, err := e.db(cmd.Context())
			if err != nil {
				return err
			}
			broker, err := e.queue(ctx)
			if err != nil {
				return err
			}
			repo := persistence.NewDeadLetterRepository()
			for _, id := range ids {
				d, err := repo.Get(ctx, id)
				if err != nil {
					return withCode(exitDB, fmt.Errorf("dead letter %s: %w", id, err))
				}
				if err := broker.Publish(ctx, d.Item()); err != nil {
					return withCode(exitBroker, fmt.Errorf("requeue %s: %w", id, err))
				}
				if err := repo.Delete(ctx, id); err != nil {
					return withCode(exitDB, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %s %s/%s\n", id, d.Kind, d.EntityID)
			}
			return nil
		},
	}
}
