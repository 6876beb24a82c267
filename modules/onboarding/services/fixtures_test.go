package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/pkg/eventbus"
)

type linkedRow struct {
	id         uuid.UUID
	orgID      uuid.UUID
	programIDs []string
}

// memStore is an in-memory Store that counts lookups.
type memStore struct {
	mu sync.Mutex

	orgs       map[string]uuid.UUID
	orgClients map[string]uuid.UUID
	schools    map[schoolKey]uuid.UUID
	classes    map[classKey]uuid.UUID
	schoolRows []linkedRow
	classRows  []linkedRow
	users      map[string]*entity.ValidatedUser
	programs   map[NegativeKey]entity.ProgramRecord
	roles      map[NegativeKey]entity.RoleRecord

	lookups     map[string]int
	failLookups error
	failInserts map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		orgs:        make(map[string]uuid.UUID),
		orgClients:  make(map[string]uuid.UUID),
		schools:     make(map[schoolKey]uuid.UUID),
		classes:     make(map[classKey]uuid.UUID),
		users:       make(map[string]*entity.ValidatedUser),
		programs:    make(map[NegativeKey]entity.ProgramRecord),
		roles:       make(map[NegativeKey]entity.RoleRecord),
		lookups:     make(map[string]int),
		failInserts: make(map[string]error),
	}
}

func (s *memStore) count(what string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups[what]
}

func (s *memStore) OrganizationIDByName(_ context.Context, name string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups["organization"]++
	if s.failLookups != nil {
		return uuid.Nil, s.failLookups
	}
	if id, ok := s.orgs[name]; ok {
		return id, nil
	}
	return uuid.Nil, entity.ErrNotFound
}

func (s *memStore) SchoolIDByName(_ context.Context, name string, orgID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups["school"]++
	if id, ok := s.schools[schoolKey{orgID: orgID, name: name}]; ok {
		return id, nil
	}
	return uuid.Nil, entity.ErrNotFound
}

func (s *memStore) ClassIDByName(_ context.Context, name string, orgID, schoolID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups["class"]++
	if id, ok := s.classes[classKey{orgID: orgID, schoolID: schoolID, name: name}]; ok {
		return id, nil
	}
	return uuid.Nil, entity.ErrNotFound
}

func (s *memStore) FindProgram(_ context.Context, name string, orgID uuid.UUID) (entity.ProgramRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups["program"]++
	if p, ok := s.programs[NegativeKey{Name: name, OrganizationID: orgID}]; ok {
		return p, nil
	}
	return entity.ProgramRecord{}, entity.ErrNotFound
}

func (s *memStore) FindIDsWithProgram(_ context.Context, programID string, orgID uuid.UUID) ([]uuid.UUID, []uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pick := func(rows []linkedRow) []uuid.UUID {
		var out []uuid.UUID
		for _, r := range rows {
			if r.orgID == orgID && slices.Contains(r.programIDs, programID) {
				out = append(out, r.id)
			}
		}
		return out
	}
	return pick(s.schoolRows), pick(s.classRows), nil
}

func (s *memStore) InsertProgram(_ context.Context, p entity.ProgramRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failInserts["program:"+p.Name]; err != nil {
		return err
	}
	s.programs[NegativeKey{Name: p.Name, OrganizationID: p.OrganizationID}] = p
	return nil
}

func (s *memStore) FindRole(_ context.Context, name string, orgID uuid.UUID) (entity.RoleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups["role"]++
	if r, ok := s.roles[NegativeKey{Name: name, OrganizationID: orgID}]; ok {
		return r, nil
	}
	return entity.RoleRecord{}, entity.ErrNotFound
}

func (s *memStore) InsertRole(_ context.Context, r entity.RoleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failInserts["role:"+r.Name]; err != nil {
		return err
	}
	s.roles[NegativeKey{Name: r.Name, OrganizationID: r.OrganizationID}] = r
	return nil
}

func (s *memStore) InsertOrganization(_ context.Context, o *entity.ValidatedOrganization) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.orgClients[o.ClientID()]; ok {
		return id, nil
	}
	s.orgs[o.Name()] = o.ID()
	s.orgClients[o.ClientID()] = o.ID()
	return o.ID(), nil
}

func (s *memStore) InsertSchool(_ context.Context, sc *entity.ValidatedSchool) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schools[schoolKey{orgID: sc.OrganizationID(), name: sc.Name()}] = sc.ID()
	s.schoolRows = append(s.schoolRows, linkedRow{id: sc.ID(), orgID: sc.OrganizationID(), programIDs: sc.ProgramIDs()})
	return sc.ID(), nil
}

func (s *memStore) InsertClass(_ context.Context, c *entity.ValidatedClass) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[classKey{orgID: c.OrganizationID(), schoolID: c.SchoolID(), name: c.Name()}] = c.ID()
	s.classRows = append(s.classRows, linkedRow{id: c.ID(), orgID: c.OrganizationID(), programIDs: c.ProgramIDs()})
	return c.ID(), nil
}

func (s *memStore) InsertUser(_ context.Context, u *entity.ValidatedUser) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ClientID()] = u
	return u.ID(), nil
}

func (s *memStore) addOrg(name string) uuid.UUID {
	id := uuid.New()
	s.orgs[name] = id
	return id
}

func (s *memStore) addSchool(orgID uuid.UUID, name string, programIDs ...string) uuid.UUID {
	id := uuid.New()
	s.schools[schoolKey{orgID: orgID, name: name}] = id
	s.schoolRows = append(s.schoolRows, linkedRow{id: id, orgID: orgID, programIDs: programIDs})
	return id
}

func (s *memStore) addClass(orgID, schoolID uuid.UUID, name string, programIDs ...string) uuid.UUID {
	id := uuid.New()
	s.classes[classKey{orgID: orgID, schoolID: schoolID, name: name}] = id
	s.classRows = append(s.classRows, linkedRow{id: id, orgID: orgID, programIDs: programIDs})
	return id
}

type stubDirectory struct {
	orgs           map[string]entity.TargetOrganization
	systemPrograms []entity.NamedID
	systemRoles    []entity.NamedID
	customPrograms map[string][]entity.NamedID
	customRoles    map[string][]entity.NamedID
	err            error

	systemLoads atomic.Int32
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		orgs:           make(map[string]entity.TargetOrganization),
		customPrograms: make(map[string][]entity.NamedID),
		customRoles:    make(map[string][]entity.NamedID),
		systemPrograms: []entity.NamedID{{ID: "sys-math", Name: "Math"}, {ID: "sys-art", Name: "Art"}},
		systemRoles:    []entity.NamedID{{ID: "sys-teacher", Name: "Teacher"}, {ID: "sys-student", Name: "Student"}},
	}
}

func (d *stubDirectory) OrganizationExists(_ context.Context, name string) (entity.TargetOrganization, error) {
	if d.err != nil {
		return entity.TargetOrganization{}, d.err
	}
	if o, ok := d.orgs[name]; ok {
		return o, nil
	}
	return entity.TargetOrganization{}, entity.ErrNotFound
}

func (d *stubDirectory) SystemPrograms(context.Context) ([]entity.NamedID, error) {
	d.systemLoads.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.systemPrograms, nil
}

func (d *stubDirectory) SystemRoles(context.Context) ([]entity.NamedID, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.systemRoles, nil
}

func (d *stubDirectory) CustomProgramsForOrg(_ context.Context, targetOrgID string) ([]entity.NamedID, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.customPrograms[targetOrgID], nil
}

func (d *stubDirectory) CustomRolesForOrg(_ context.Context, targetOrgID string) ([]entity.NamedID, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.customRoles[targetOrgID], nil
}

type stubFetcher struct {
	mu       sync.Mutex
	entities map[string]entity.Raw
	children map[string][]entity.Raw
	orgs     []string
	failures map[string]int
	gone     map[string]bool
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		entities: make(map[string]entity.Raw),
		children: make(map[string][]entity.Raw),
		failures: make(map[string]int),
		gone:     make(map[string]bool),
	}
}

var errSourceDown = errors.New("source of record unavailable")

func (f *stubFetcher) add(parent entity.Raw, raws ...entity.Raw) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range raws {
		f.entities[string(r.Kind())+"|"+r.ClientID()] = r
		if parent != nil {
			key := string(parent.Kind()) + "|" + parent.ClientID()
			f.children[key] = append(f.children[key], r)
		}
	}
}

func (f *stubFetcher) FetchEntity(_ context.Context, kind entity.Kind, id string) (entity.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(kind) + "|" + id
	if f.failures[key] > 0 {
		f.failures[key]--
		return nil, errSourceDown
	}
	if r, ok := f.entities[key]; ok {
		return r, nil
	}
	return nil, entity.ErrNotFound
}

func (f *stubFetcher) FetchChildren(_ context.Context, kind entity.Kind, parentID string) ([]entity.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(kind) + "|" + parentID
	if f.gone[key] {
		return nil, entity.ErrNotFound
	}
	return f.children[key], nil
}

func (f *stubFetcher) ListOrganizations(context.Context) ([]string, error) {
	return f.orgs, nil
}

type fixture struct {
	store    *memStore
	dir      *stubDirectory
	fetcher  *stubFetcher
	clock    *clockwork.FakeClock
	bus      eventbus.EventBus
	names    *ResolutionContext
	programs *ProgramRegistry
	roles    *RoleRegistry
	svc      *OnboardingService
	handler  *ItemHandler
}

func (f *fixture) registryCache() RegistryCache {
	return RegistryCache{
		Negative: NewNegativeCache(DefaultNegativeTTL, f.clock),
		TTL:      DefaultScopeTTL,
		Clock:    f.clock,
	}
}

func newFixture(t *testing.T, cacheSize int) *fixture {
	t.Helper()
	f := &fixture{
		store:   newMemStore(),
		dir:     newStubDirectory(),
		fetcher: newStubFetcher(),
		clock:   clockwork.NewFakeClock(),
		bus:     eventbus.New(nil),
	}
	f.programs = NewProgramRegistry(f.dir, f.store, f.registryCache(), nil)
	f.roles = NewRoleRegistry(f.dir, f.store, f.registryCache(), nil)

	var err error
	f.names, err = NewResolutionContext(f.store, f.roles, cacheSize)
	require.NoError(t, err)
	RegisterSubscribers(f.bus, f.names, f.programs)

	f.svc = NewOnboardingService(OnboardingDeps{
		Store:     f.store,
		Directory: f.dir,
		Names:     f.names,
		Programs:  f.programs,
		Roles:     f.roles,
		Bus:       f.bus,
	})
	f.handler = NewItemHandler(f.fetcher, f.svc, nil)
	return f
}

func (f *fixture) initRegistries(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.programs.Initialize(ctx))
	require.NoError(t, f.roles.Initialize(ctx))
}
