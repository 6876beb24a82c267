package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/modules/onboarding/domain/onboarderr"
	"github.com/iota-uz/onboarding/pkg/eventbus"
)

// EntityProcessor validates and persists one kind of entity.
type EntityProcessor interface {
	Kind() entity.Kind
	Validate(ctx context.Context, raw entity.Raw) (entity.Validated, error)
	InsertOne(ctx context.Context, v entity.Validated) error
	Process(ctx context.Context, raw entity.Raw) (entity.Validated, error)
}

type processor[R entity.Raw, V entity.Validated] struct {
	kind  entity.Kind
	chain *ValidationChain
	bus   eventbus.EventBus

	describe func(R) Descriptor
	build    func(ctx context.Context, raw R, res Resolved) (V, error)
	insert   func(ctx context.Context, v V) (uuid.UUID, error)
	event    func(v V, id uuid.UUID) *EntityPersistedEvent
	// afterInsert runs once the entity and its event are out.
	afterInsert func(ctx context.Context, v V, id uuid.UUID) error
}

func (p *processor[R, V]) Kind() entity.Kind { return p.kind }

func (p *processor[R, V]) Validate(ctx context.Context, raw entity.Raw) (entity.Validated, error) {
	r, ok := entity.Normalize(raw).(R)
	if !ok {
		return nil, onboarderr.Internalf("%s processor received %T", p.kind, raw)
	}
	res, err := p.chain.Resolve(ctx, r, p.describe(r))
	if err != nil {
		return nil, err
	}
	v, err := p.build(ctx, r, res)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (p *processor[R, V]) InsertOne(ctx context.Context, v entity.Validated) error {
	typed, ok := v.(V)
	if !ok {
		return onboarderr.Internalf("%s processor cannot insert %T", p.kind, v)
	}
	id, err := p.insert(ctx, typed)
	if err != nil {
		return err
	}
	recordPersisted(string(p.kind))
	p.bus.Publish(p.event(typed, id))
	if p.afterInsert != nil {
		return p.afterInsert(ctx, typed, id)
	}
	return nil
}

func (p *processor[R, V]) Process(ctx context.Context, raw entity.Raw) (entity.Validated, error) {
	v, err := p.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := p.InsertOne(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}
