// Package onboarding wires the onboarding services, registries and caches into
// the work item handler the queue consumer runs.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/onboarding/modules/onboarding/infrastructure/persistence"
	"github.com/iota-uz/onboarding/modules/onboarding/services"
	"github.com/iota-uz/onboarding/pkg/eventbus"
	"github.com/iota-uz/onboarding/pkg/logging"
)

type ModuleOptions struct {
	Directory services.Directory
	Fetcher   services.Fetcher
	// Store defaults to the Postgres store.
	Store       services.Store
	CacheSize   int
	NegativeTTL time.Duration
	// ScopeTTL bounds how long a worker trusts a cached organization program
	// or role, including its school and class scope.
	ScopeTTL time.Duration
	Clock    clockwork.Clock
	Logger   *logrus.Entry
}

type Module struct {
	Store     services.Store
	Directory services.Directory
	Bus       eventbus.EventBus
	Names     *services.ResolutionContext
	Programs  *services.ProgramRegistry
	Roles     *services.RoleRegistry
	Service   *services.OnboardingService
	Handler   *services.ItemHandler
}

func NewModule(opts ModuleOptions) (*Module, error) {
	if opts.Directory == nil {
		return nil, errors.New("onboarding: directory is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("onboarding: fetcher is required")
	}
	if opts.Store == nil {
		opts.Store = persistence.NewStore()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	m := &Module{
		Store:     opts.Store,
		Directory: opts.Directory,
		Bus:       eventbus.New(opts.Logger),
	}
	registryCache := func() services.RegistryCache {
		return services.RegistryCache{
			Negative: services.NewNegativeCache(opts.NegativeTTL, opts.Clock),
			TTL:      opts.ScopeTTL,
			Clock:    opts.Clock,
		}
	}
	m.Programs = services.NewProgramRegistry(opts.Directory, opts.Store, registryCache(), opts.Logger)
	m.Roles = services.NewRoleRegistry(opts.Directory, opts.Store, registryCache(), opts.Logger)

	names, err := services.NewResolutionContext(opts.Store, m.Roles, opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("onboarding: %w", err)
	}
	m.Names = names
	services.RegisterSubscribers(m.Bus, m.Names, m.Programs)

	m.Service = services.NewOnboardingService(services.OnboardingDeps{
		Store:     opts.Store,
		Directory: opts.Directory,
		Names:     m.Names,
		Programs:  m.Programs,
		Roles:     m.Roles,
		Bus:       m.Bus,
		Logger:    opts.Logger,
	})
	m.Handler = services.NewItemHandler(opts.Fetcher, m.Service, opts.Logger)
	return m, nil
}

// Initialize loads the system programs and roles. It must succeed before the
// handler can validate anything that names a program or role.
func (m *Module) Initialize(ctx context.Context) error {
	return errors.Join(m.Programs.Initialize(ctx), m.Roles.Initialize(ctx))
}

// SyncOrganization refreshes the custom programs and roles of an organization
// that is already stored.
func (m *Module) SyncOrganization(ctx context.Context, name string) error {
	orgID, err := m.Store.OrganizationIDByName(ctx, name)
	if err != nil {
		return fmt.Errorf("organization %q: %w", name, err)
	}
	target, err := m.Directory.OrganizationExists(ctx, name)
	if err != nil {
		return fmt.Errorf("organization %q in directory: %w", name, err)
	}
	return errors.Join(
		m.Programs.FetchAndStoreForOrg(ctx, orgID, target.ID),
		m.Roles.FetchAndStoreForOrg(ctx, orgID, target.ID),
	)
}

func (m *Module) Name() string {
	return "onboarding"
}
