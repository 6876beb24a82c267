package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/modules/onboarding/domain/onboarderr"
	"github.com/iota-uz/onboarding/pkg/composables"
	"github.com/iota-uz/onboarding/pkg/workqueue"
)

// ItemHandler onboards the entity a work item names and, for cascading items,
// returns one item per direct child.
type ItemHandler struct {
	fetcher Fetcher
	svc     *OnboardingService
	log     *logrus.Entry
}

var _ workqueue.Handler = (*ItemHandler)(nil)

func NewItemHandler(fetcher Fetcher, svc *OnboardingService, log *logrus.Entry) *ItemHandler {
	return &ItemHandler{fetcher: fetcher, svc: svc, log: componentLogger(log, "item_handler")}
}

func (h *ItemHandler) Handle(ctx context.Context, item workqueue.Item) ([]workqueue.Item, error) {
	ctx = composables.WithLogger(ctx, h.log.WithFields(logrus.Fields{
		"kind":      item.Kind,
		"entity_id": item.EntityID,
		"trace_id":  item.TraceID,
		"attempts":  item.Attempts,
	}))
	kind, err := entity.ParseKind(item.Kind)
	if err != nil {
		return nil, onboarderr.NewValidationError(entity.Kind(item.Kind), item.EntityID,
			onboarderr.Violation{Path: "kind", Detail: err.Error()})
	}
	if IsFullMigration(item) {
		return h.expand(ctx, item)
	}

	raw, err := h.fetcher.FetchEntity(ctx, kind, item.EntityID)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, &onboarderr.NotFoundError{Kind: kind, EntityID: item.EntityID}
	}
	if err != nil {
		return nil, err
	}
	if raw.Kind() != kind {
		return nil, onboarderr.Internalf("fetched %s for %s item %s", raw.Kind(), kind, item.EntityID)
	}

	if _, err := h.svc.Process(ctx, raw); err != nil {
		return nil, err
	}
	if !item.Cascade || len(kind.Children()) == 0 {
		return nil, nil
	}

	children, err := h.fetcher.FetchChildren(ctx, kind, item.EntityID)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, &onboarderr.NotFoundError{Kind: kind, EntityID: item.EntityID}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch children of %s %s: %w", kind, item.EntityID, err)
	}
	next := make([]workqueue.Item, 0, len(children))
	for _, child := range children {
		if !kind.HasChild(child.Kind()) {
			continue
		}
		next = append(next, item.Child(string(child.Kind()), child.ClientID()))
	}
	return next, nil
}

// expand turns a full migration item into one item per known organization.
func (h *ItemHandler) expand(ctx context.Context, item workqueue.Item) ([]workqueue.Item, error) {
	ids, err := h.fetcher.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	next := make([]workqueue.Item, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == entity.FullMigrationID {
			continue
		}
		next = append(next, item.Child(string(entity.KindOrganization), id))
	}
	h.log.WithFields(logrus.Fields{
		"trace_id":      item.TraceID,
		"organizations": len(next),
	}).Info("full migration expanded")
	return next, nil
}

// IsFullMigration reports whether item stands for every known organization.
func IsFullMigration(item workqueue.Item) bool {
	if item.FullMigration {
		return true
	}
	kind, err := entity.ParseKind(item.Kind)
	return err == nil && kind == entity.KindOrganization && item.EntityID == entity.FullMigrationID
}
