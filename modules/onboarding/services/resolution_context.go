package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/modules/onboarding/domain/onboarderr"
)

const DefaultResolutionCacheSize = 50

// RoleLookup resolves a role name within an organization.
type RoleLookup interface {
	RoleID(ctx context.Context, name string, orgID uuid.UUID) (string, error)
}

type schoolKey struct {
	orgID uuid.UUID
	name  string
}

type classKey struct {
	orgID    uuid.UUID
	schoolID uuid.UUID
	name     string
}

// ResolutionContext resolves organization, school and class names to internal ids.
// Each level has its own LRU in front of the store; a capacity of zero disables
// caching. Misses are not cached.
type ResolutionContext struct {
	store NameLookup
	roles RoleLookup

	orgs    *lru.Cache[string, uuid.UUID]
	schools *lru.Cache[schoolKey, uuid.UUID]
	classes *lru.Cache[classKey, uuid.UUID]

	group singleflight.Group
}

func NewResolutionContext(store NameLookup, roles RoleLookup, size int) (*ResolutionContext, error) {
	if store == nil {
		return nil, errors.New("resolution context: store is required")
	}
	if size < 0 {
		return nil, fmt.Errorf("resolution context: negative cache size %d", size)
	}
	rc := &ResolutionContext{store: store, roles: roles}
	if size == 0 {
		return rc, nil
	}
	var err error
	if rc.orgs, err = lru.New[string, uuid.UUID](size); err != nil {
		return nil, err
	}
	if rc.schools, err = lru.New[schoolKey, uuid.UUID](size); err != nil {
		return nil, err
	}
	if rc.classes, err = lru.New[classKey, uuid.UUID](size); err != nil {
		return nil, err
	}
	return rc, nil
}

func (rc *ResolutionContext) OrganizationID(ctx context.Context, name string) (uuid.UUID, error) {
	id, err := cached(rc.orgs, name, "organization", func() (uuid.UUID, error) {
		return rc.shared(ctx, "org|"+name, func(ctx context.Context) (uuid.UUID, error) {
			return rc.store.OrganizationIDByName(ctx, name)
		})
	})
	if errors.Is(err, entity.ErrNotFound) {
		return uuid.Nil, onboarderr.NewInvalidEntityNameError(entity.KindOrganization, name, uuid.Nil, uuid.Nil)
	}
	return id, err
}

func (rc *ResolutionContext) SchoolID(ctx context.Context, name string, orgID uuid.UUID) (uuid.UUID, error) {
	key := schoolKey{orgID: orgID, name: name}
	id, err := cached(rc.schools, key, "school", func() (uuid.UUID, error) {
		return rc.shared(ctx, fmt.Sprintf("school|%s|%s", orgID, name), func(ctx context.Context) (uuid.UUID, error) {
			return rc.store.SchoolIDByName(ctx, name, orgID)
		})
	})
	if errors.Is(err, entity.ErrNotFound) {
		return uuid.Nil, onboarderr.NewInvalidEntityNameError(entity.KindSchool, name, orgID, uuid.Nil)
	}
	return id, err
}

func (rc *ResolutionContext) ClassID(ctx context.Context, name string, orgID, schoolID uuid.UUID) (uuid.UUID, error) {
	key := classKey{orgID: orgID, schoolID: schoolID, name: name}
	id, err := cached(rc.classes, key, "class", func() (uuid.UUID, error) {
		return rc.shared(ctx, fmt.Sprintf("class|%s|%s|%s", orgID, schoolID, name), func(ctx context.Context) (uuid.UUID, error) {
			return rc.store.ClassIDByName(ctx, name, orgID, schoolID)
		})
	})
	if errors.Is(err, entity.ErrNotFound) {
		return uuid.Nil, onboarderr.NewInvalidEntityNameError(entity.KindClass, name, orgID, schoolID)
	}
	return id, err
}

// ClassesAreValid resolves every name and reports all failures together.
func (rc *ResolutionContext) ClassesAreValid(ctx context.Context, names []string, orgID, schoolID uuid.UUID) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(names))
	var errs []error
	for _, name := range names {
		id, err := rc.ClassID(ctx, name, orgID, schoolID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ids, nil
}

// RolesAreValid resolves every role name and reports all failures together.
func (rc *ResolutionContext) RolesAreValid(ctx context.Context, names []string, orgID uuid.UUID) ([]string, error) {
	if rc.roles == nil {
		return nil, onboarderr.Internalf("role lookup is not configured")
	}
	ids := make([]string, 0, len(names))
	var errs []error
	for _, name := range names {
		id, err := rc.roles.RoleID(ctx, name, orgID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ids, nil
}

// Remember records a freshly persisted entity so its children resolve without a
// store round trip.
func (rc *ResolutionContext) Remember(kind entity.Kind, name string, orgID, schoolID, id uuid.UUID) {
	switch kind {
	case entity.KindOrganization:
		if rc.orgs != nil {
			rc.orgs.Add(name, id)
		}
	case entity.KindSchool:
		if rc.schools != nil {
			rc.schools.Add(schoolKey{orgID: orgID, name: name}, id)
		}
	case entity.KindClass:
		if rc.classes != nil {
			rc.classes.Add(classKey{orgID: orgID, schoolID: schoolID, name: name}, id)
		}
	}
}

func (rc *ResolutionContext) OnEntityPersisted(e *EntityPersistedEvent) {
	rc.Remember(e.Kind, e.Name, e.OrganizationID, e.SchoolID, e.ID)
}

// Len reports the number of cached entries per level.
func (rc *ResolutionContext) Len() (orgs, schools, classes int) {
	if rc.orgs == nil {
		return 0, 0, 0
	}
	return rc.orgs.Len(), rc.schools.Len(), rc.classes.Len()
}

func (rc *ResolutionContext) shared(ctx context.Context, key string, load func(context.Context) (uuid.UUID, error)) (uuid.UUID, error) {
	v, err, _ := rc.group.Do(key, func() (any, error) {
		return load(ctx)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return v.(uuid.UUID), nil
}

func cached[K comparable](cache *lru.Cache[K, uuid.UUID], key K, label string, load func() (uuid.UUID, error)) (uuid.UUID, error) {
	if cache == nil {
		return load()
	}
	if id, ok := cache.Get(key); ok {
		recordCacheRequest(label, "hit")
		return id, nil
	}
	id, err := load()
	if err != nil {
		recordCacheRequest(label, "error")
		return uuid.Nil, err
	}
	recordCacheRequest(label, "miss")
	cache.Add(key, id)
	return id, nil
}
