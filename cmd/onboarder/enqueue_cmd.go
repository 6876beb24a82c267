package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/pkg/workqueue"
)

func newEnqueueCmd() *cobra.Command {
	var (
		cascade bool
		full    bool
		traceID string
	)

	cmd := &cobra.Command{
		Use:   "enqueue [Kind:ID ...]",
		Short: "Publish work items for the worker",
		Example: `  onboarder enqueue Organization:org-1 --cascade
  onboarder enqueue --full`,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := buildItems(args, full, cascade, traceID)
			if err != nil {
				return withCode(exitUsage, err)
			}

			e := openEnv()
			defer e.close()
			ctx := cmd.Context()
			broker, err := e.queue(ctx)
			if err != nil {
				return err
			}
			for _, item := range items {
				if err := broker.Publish(ctx, item); err != nil {
					return withCode(exitBroker, fmt.Errorf("publish %s: %w", item, err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s\n", item)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "also onboard every dependent entity")
	cmd.Flags().BoolVar(&full, "full", false, "migrate every organization the source knows (implies --cascade)")
	cmd.Flags().StringVar(&traceID, "trace-id", "", "trace id shared by the items (default: random)")
	return cmd
}

func buildItems(args []string, full, cascade bool, traceID string) ([]workqueue.Item, error) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	if full {
		if len(args) > 0 {
			return nil, fmt.Errorf("--full takes no item arguments")
		}
		return []workqueue.Item{{
			Kind:          string(entity.KindOrganization),
			EntityID:      entity.FullMigrationID,
			TraceID:       traceID,
			Cascade:       true,
			FullMigration: true,
		}}, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one Kind:ID argument is required")
	}
	items := make([]workqueue.Item, 0, len(args))
	for _, arg := range args {
		item, err := parseItemRef(arg)
		if err != nil {
			return nil, err
		}
		item.TraceID = traceID
		item.Cascade = cascade
		items = append(items, item)
	}
	return items, nil
}

// parseItemRef parses "Kind:ID".
func parseItemRef(s string) (workqueue.Item, error) {
	kindPart, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || strings.TrimSpace(id) == "" {
		return workqueue.Item{}, fmt.Errorf("invalid item %q (expected Kind:ID)", s)
	}
	kind, err := entity.ParseKind(kindPart)
	if err != nil {
		return workqueue.Item{}, err
	}
	item := workqueue.Item{Kind: string(kind), EntityID: strings.TrimSpace(id)}
	if item.TraceID == "" {
		item.TraceID = uuid.NewString()
	}
	return item, item.Validate()
}
