package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/modules/onboarding/domain/onboarderr"
	"github.com/iota-uz/onboarding/pkg/eventbus"
)

// OnboardingService routes raw entities to the processor for their kind.
type OnboardingService struct {
	processors map[entity.Kind]EntityProcessor
	log        *logrus.Entry
}

type OnboardingDeps struct {
	Store     EntityWriter
	Directory Directory
	Names     *ResolutionContext
	Programs  *ProgramRegistry
	Roles     *RoleRegistry
	Bus       eventbus.EventBus
	Logger    *logrus.Entry
}

func NewOnboardingService(deps OnboardingDeps) *OnboardingService {
	if deps.Bus == nil {
		deps.Bus = eventbus.New(deps.Logger)
	}
	chain := NewValidationChain(deps.Names, deps.Programs)
	s := &OnboardingService{
		processors: make(map[entity.Kind]EntityProcessor, 4),
		log:        componentLogger(deps.Logger, "onboarding"),
	}
	for _, p := range []EntityProcessor{
		organizationProcessor(chain, deps),
		schoolProcessor(chain, deps),
		classProcessor(chain, deps),
		userProcessor(chain, deps),
	} {
		s.processors[p.Kind()] = p
	}
	return s
}

func (s *OnboardingService) Processor(kind entity.Kind) (EntityProcessor, bool) {
	p, ok := s.processors[kind]
	return p, ok
}

func (s *OnboardingService) Process(ctx context.Context, raw entity.Raw) (entity.Validated, error) {
	p, ok := s.processors[raw.Kind()]
	if !ok {
		return nil, onboarderr.Internalf("no processor for %s", raw.Kind())
	}
	v, err := p.Process(ctx, raw)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"kind":      v.Kind(),
		"entity_id": v.ClientID(),
		"id":        v.ID(),
	}).Info("entity onboarded")
	return v, nil
}

func organizationProcessor(chain *ValidationChain, deps OnboardingDeps) EntityProcessor {
	return &processor[entity.RawOrganization, *entity.ValidatedOrganization]{
		kind:  entity.KindOrganization,
		chain: chain,
		bus:   deps.Bus,
		describe: func(r entity.RawOrganization) Descriptor {
			return Descriptor{Kind: entity.KindOrganization, ClientID: r.ID}
		},
		build: func(ctx context.Context, r entity.RawOrganization, _ Resolved) (*entity.ValidatedOrganization, error) {
			target, err := deps.Directory.OrganizationExists(ctx, r.Name)
			if errors.Is(err, entity.ErrNotFound) {
				return nil, onboarderr.NewValidationError(entity.KindOrganization, r.ID, onboarderr.Violation{
					Path:   "name",
					Detail: fmt.Sprintf("organization %q does not exist in the target platform", r.Name),
				})
			}
			if err != nil {
				return nil, err
			}
			return entity.NewValidatedOrganization(uuid.New(), r, target), nil
		},
		insert: deps.Store.InsertOrganization,
		event: func(o *entity.ValidatedOrganization, id uuid.UUID) *EntityPersistedEvent {
			return &EntityPersistedEvent{Kind: entity.KindOrganization, ID: id, ClientID: o.ClientID(), Name: o.Name(), OrganizationID: id}
		},
		afterInsert: func(ctx context.Context, o *entity.ValidatedOrganization, id uuid.UUID) error {
			return errors.Join(
				deps.Programs.FetchAndStoreForOrg(ctx, id, o.TargetID()),
				deps.Roles.FetchAndStoreForOrg(ctx, id, o.TargetID()),
			)
		},
	}
}

func schoolProcessor(chain *ValidationChain, deps OnboardingDeps) EntityProcessor {
	return &processor[entity.RawSchool, *entity.ValidatedSchool]{
		kind:  entity.KindSchool,
		chain: chain,
		bus:   deps.Bus,
		describe: func(r entity.RawSchool) Descriptor {
			return Descriptor{
				Kind:             entity.KindSchool,
				ClientID:         r.ID,
				OrganizationName: r.OrganizationName,
				ProgramNames:     r.ProgramNames,
			}
		},
		build: func(_ context.Context, r entity.RawSchool, res Resolved) (*entity.ValidatedSchool, error) {
			return entity.NewValidatedSchool(uuid.New(), r, res.OrganizationID, res.ProgramIDs), nil
		},
		insert: deps.Store.InsertSchool,
		event: func(s *entity.ValidatedSchool, id uuid.UUID) *EntityPersistedEvent {
			return &EntityPersistedEvent{
				Kind:           entity.KindSchool,
				ID:             id,
				ClientID:       s.ClientID(),
				Name:           s.Name(),
				OrganizationID: s.OrganizationID(),
				ProgramIDs:     s.ProgramIDs(),
			}
		},
	}
}

func classProcessor(chain *ValidationChain, deps OnboardingDeps) EntityProcessor {
	return &processor[entity.RawClass, *entity.ValidatedClass]{
		kind:  entity.KindClass,
		chain: chain,
		bus:   deps.Bus,
		describe: func(r entity.RawClass) Descriptor {
			return Descriptor{
				Kind:             entity.KindClass,
				ClientID:         r.ID,
				OrganizationName: r.OrganizationName,
				SchoolName:       r.SchoolName,
				ProgramNames:     r.ProgramNames,
			}
		},
		build: func(_ context.Context, r entity.RawClass, res Resolved) (*entity.ValidatedClass, error) {
			if res.SchoolID == nil {
				return nil, onboarderr.Internalf("class %s has no resolved school", r.ID)
			}
			return entity.NewValidatedClass(uuid.New(), r, res.OrganizationID, *res.SchoolID, res.ProgramIDs), nil
		},
		insert: deps.Store.InsertClass,
		event: func(c *entity.ValidatedClass, id uuid.UUID) *EntityPersistedEvent {
			return &EntityPersistedEvent{
				Kind:           entity.KindClass,
				ID:             id,
				ClientID:       c.ClientID(),
				Name:           c.Name(),
				OrganizationID: c.OrganizationID(),
				SchoolID:       c.SchoolID(),
				ProgramIDs:     c.ProgramIDs(),
			}
		},
	}
}

func userProcessor(chain *ValidationChain, deps OnboardingDeps) EntityProcessor {
	return &processor[entity.RawUser, *entity.ValidatedUser]{
		kind:  entity.KindUser,
		chain: chain,
		bus:   deps.Bus,
		describe: func(r entity.RawUser) Descriptor {
			return Descriptor{
				Kind:             entity.KindUser,
				ClientID:         r.ID,
				OrganizationName: r.OrganizationName,
				SchoolName:       r.SchoolName,
				ClassNames:       r.ClassNames,
				RoleNames:        r.RoleNames,
			}
		},
		build: func(_ context.Context, r entity.RawUser, res Resolved) (*entity.ValidatedUser, error) {
			return entity.NewValidatedUser(uuid.New(), r, entity.UserRefs{
				OrganizationID: res.OrganizationID,
				SchoolID:       res.SchoolID,
				ClassIDs:       res.ClassIDs,
				RoleIDs:        res.RoleIDs,
			}), nil
		},
		insert: deps.Store.InsertUser,
		event: func(u *entity.ValidatedUser, id uuid.UUID) *EntityPersistedEvent {
			sid, _ := u.SchoolID()
			return &EntityPersistedEvent{
				Kind:           entity.KindUser,
				ID:             id,
				ClientID:       u.ClientID(),
				Name:           u.Name(),
				OrganizationID: u.OrganizationID(),
				SchoolID:       sid,
			}
		},
	}
}
