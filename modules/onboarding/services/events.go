package services

import (
	"github.com/google/uuid"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/pkg/eventbus"
)

// EntityPersistedEvent is published after an entity is written to the store.
type EntityPersistedEvent struct {
	Kind           entity.Kind
	ID             uuid.UUID
	ClientID       string
	Name           string
	OrganizationID uuid.UUID
	SchoolID       uuid.UUID
	ProgramIDs     []string
}

// RegisterSubscribers keeps the caches in step with what gets persisted.
func RegisterSubscribers(bus eventbus.EventBus, names *ResolutionContext, programs *ProgramRegistry) {
	bus.Subscribe(names.OnEntityPersisted)
	bus.Subscribe(programs.OnEntityPersisted)
}
