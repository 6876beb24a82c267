package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/modules/onboarding/domain/onboarderr"
)

func TestProgramRegistry_RequiresInitialize(t *testing.T) {
	f := newFixture(t, DefaultResolutionCacheSize)

	_, err := f.programs.ProgramID(context.Background(), "Math", uuid.New(), nil, nil)
	require.ErrorIs(t, err, ErrRegistryNotInitialized)
	_, err = f.roles.RoleID(context.Background(), "Teacher", uuid.New())
	require.ErrorIs(t, err, ErrRegistryNotInitialized)
}

func TestProgramRegistry_ConcurrentInitializeLoadsOnce(t *testing.T) {
	f := newFixture(t, DefaultResolutionCacheSize)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, f.programs.Initialize(context.Background()))
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, f.dir.systemLoads.Load())
}

func TestProgramRegistry_FailedInitializeStaysUninitialized(t *testing.T) {
	f := newFixture(t, DefaultResolutionCacheSize)
	f.dir.err = errors.New("directory down")

	require.Error(t, f.programs.Initialize(context.Background()))
	_, err := f.programs.ProgramID(context.Background(), "Math", uuid.New(), nil, nil)
	require.ErrorIs(t, err, ErrRegistryNotInitialized)

	f.dir.err = nil
	require.NoError(t, f.programs.Initialize(context.Background()))
	require.True(t, f.programs.ProgramIsValid(context.Background(), "Math", uuid.New(), nil, nil))
}

func TestProgramRegistry_SchoolAndClassScoping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultResolutionCacheSize)
	f.initRegistries(t)

	orgID := f.store.addOrg("Acme")
	f.store.programs[NegativeKey{Name: "Robotics", OrganizationID: orgID}] = entity.ProgramRecord{ID: "p-robotics", Name: "Robotics", OrganizationID: orgID}
	f.store.programs[NegativeKey{Name: "Math", OrganizationID: orgID}] = entity.ProgramRecord{ID: "p-math-acme", Name: "Math", OrganizationID: orgID}
	north := f.store.addSchool(orgID, "North", "p-robotics", "p-math-acme")
	south := f.store.addSchool(orgID, "South")
	class1 := f.store.addClass(orgID, north, "1A", "p-math-acme")
	class2 := f.store.addClass(orgID, north, "1B")

	id, err := f.programs.ProgramID(ctx, "Robotics", orgID, &north, nil)
	require.NoError(t, err)
	require.Equal(t, "p-robotics", id)

	_, err = f.programs.ProgramID(ctx, "Robotics", orgID, &south, nil)
	var verr *onboarderr.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Error(), south.String())
	require.Contains(t, verr.Error(), orgID.String())

	id, err = f.programs.ProgramID(ctx, "Math", orgID, &north, &class1)
	require.NoError(t, err)
	require.Equal(t, "p-math-acme", id)

	// out of the organization program's class scope the system program applies
	id, err = f.programs.ProgramID(ctx, "Math", orgID, &north, &class2)
	require.NoError(t, err)
	require.Equal(t, "sys-math", id)
}

func TestProgramRegistry_SystemFallback(t *testing.T) {
	f := newFixture(t, DefaultResolutionCacheSize)
	f.initRegistries(t)
	orgID := f.store.addOrg("Acme")

	id, err := f.programs.ProgramID(context.Background(), "Art", orgID, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "sys-art", id)
	require.False(t, f.programs.ProgramIsValid(context.Background(), "Chess", orgID, nil, nil))
}

func TestProgramRegistry_NegativeCacheSkipsStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultResolutionCacheSize)
	f.initRegistries(t)
	orgID := f.store.addOrg("Acme")

	require.False(t, f.programs.ProgramIsValid(ctx, "Chess", orgID, nil, nil))
	require.False(t, f.programs.ProgramIsValid(ctx, "Chess", orgID, nil, nil))
	require.Equal(t, 1, f.store.count("program"))

	f.clock.Advance(DefaultNegativeTTL + time.Second)
	require.False(t, f.programs.ProgramIsValid(ctx, "Chess", orgID, nil, nil))
	require.Equal(t, 2, f.store.count("program"))
}

func TestProgramRegistry_FetchAndStoreForOrg(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultResolutionCacheSize)
	f.initRegistries(t)
	orgID := f.store.addOrg("Acme")
	f.dir.customPrograms["target-acme"] = []entity.NamedID{
		{ID: "p-1", Name: "Robotics"},
		{ID: "p-2", Name: "Chess"},
		{ID: "p-3", Name: "Drama"},
	}
	f.store.failInserts["program:Chess"] = errors.New("disk full")
	f.store.failInserts["program:Drama"] = errors.New("disk full")

	// a miss before the organization's programs are stored
	require.False(t, f.programs.ProgramIsValid(ctx, "Robotics", orgID, nil, nil))

	err := f.programs.FetchAndStoreForOrg(ctx, orgID, "target-acme")
	require.Error(t, err)
	require.Contains(t, err.Error(), `"Chess"`)
	require.Contains(t, err.Error(), `"Drama"`)

	id, err := f.programs.ProgramID(ctx, "Robotics", orgID, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "p-1", id)
}

func TestProgramRegistry_FlushKeepsSystemMap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultResolutionCacheSize)
	f.initRegistries(t)
	orgID := f.store.addOrg("Acme")
	f.store.programs[NegativeKey{Name: "Robotics", OrganizationID: orgID}] = entity.ProgramRecord{ID: "p-robotics", Name: "Robotics", OrganizationID: orgID}

	require.True(t, f.programs.ProgramIsValid(ctx, "Robotics", orgID, nil, nil))
	require.True(t, f.programs.ProgramIsValid(ctx, "Robotics", orgID, nil, nil))
	require.Equal(t, 1, f.store.count("program"))

	f.programs.Flush()
	require.True(t, f.programs.ProgramIsValid(ctx, "Robotics", orgID, nil, nil))
	require.Equal(t, 2, f.store.count("program"))
	require.True(t, f.programs.ProgramIsValid(ctx, "Math", orgID, nil, nil))
}

func TestProgramRegistry_CachedScopeExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultResolutionCacheSize)
	f.initRegistries(t)
	orgID := f.store.addOrg("Acme")
	f.store.programs[NegativeKey{Name: "Robotics", OrganizationID: orgID}] = entity.ProgramRecord{ID: "p-robotics", Name: "Robotics", OrganizationID: orgID}
	south := uuid.New()

	require.True(t, f.programs.ProgramIsValid(ctx, "Robotics", orgID, &south, nil))

	// another worker links the program to North only
	f.store.addSchool(orgID, "North", "p-robotics")
	require.True(t, f.programs.ProgramIsValid(ctx, "Robotics", orgID, &south, nil))
	require.Equal(t, 1, f.store.count("program"))

	f.clock.Advance(DefaultScopeTTL)
	require.False(t, f.programs.ProgramIsValid(ctx, "Robotics", orgID, &south, nil))
	require.Equal(t, 2, f.store.count("program"))
}

func TestProgramRegistry_CacheSizeIsBounded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultResolutionCacheSize)
	cache := f.registryCache()
	cache.Size = 1
	programs := NewProgramRegistry(f.dir, f.store, cache, nil)
	require.NoError(t, programs.Initialize(ctx))
	orgID := f.store.addOrg("Acme")
	for _, name := range []string{"Robotics", "Chess"} {
		f.store.programs[NegativeKey{Name: name, OrganizationID: orgID}] = entity.ProgramRecord{ID: "p-" + name, Name: name, OrganizationID: orgID}
	}

	require.True(t, programs.ProgramIsValid(ctx, "Robotics", orgID, nil, nil))
	require.True(t, programs.ProgramIsValid(ctx, "Chess", orgID, nil, nil))
	require.True(t, programs.ProgramIsValid(ctx, "Robotics", orgID, nil, nil))
	require.Equal(t, 3, f.store.count("program"))
}

func TestRoleRegistry_OrganizationThenSystem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultResolutionCacheSize)
	f.initRegistries(t)
	orgID := f.store.addOrg("Acme")
	f.dir.customRoles["target-acme"] = []entity.NamedID{{ID: "r-principal", Name: "Principal"}}

	require.NoError(t, f.roles.FetchAndStoreForOrg(ctx, orgID, "target-acme"))

	id, err := f.roles.RoleID(ctx, "Principal", orgID)
	require.NoError(t, err)
	require.Equal(t, "r-principal", id)

	id, err = f.roles.RoleID(ctx, "Teacher", orgID)
	require.NoError(t, err)
	require.Equal(t, "sys-teacher", id)

	_, err = f.roles.RoleID(ctx, "Principal", uuid.New())
	require.True(t, onboarderr.IsTerminal(err))
	require.False(t, f.roles.RoleIsValid(ctx, "Janitor", orgID))
}
