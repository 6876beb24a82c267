package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
)

var ErrRegistryNotInitialized = errors.New("registry not initialized")

const (
	DefaultScopeTTL  = 5 * time.Minute
	DefaultScopeSize = 4096
)

// RegistryCache bounds what a registry remembers about organization records.
// Records expire after TTL on Clock; at most Size of them are kept.
type RegistryCache struct {
	Negative *NegativeCache
	TTL      time.Duration
	Size     int
	Clock    clockwork.Clock
}

func (c *RegistryCache) setDefaults() {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Negative == nil {
		c.Negative = NewNegativeCache(DefaultNegativeTTL, c.Clock)
	}
	if c.TTL <= 0 {
		c.TTL = DefaultScopeTTL
	}
	if c.Size <= 0 {
		c.Size = DefaultScopeSize
	}
}

type scoped[R any] struct {
	rec     R
	expires time.Time
}

// registry holds the system map loaded once from the directory and a lazily
// filled, expiring cache of organization records backed by the store.
type registry[R any] struct {
	label      string
	loadSystem func(ctx context.Context) ([]entity.NamedID, error)
	find       func(ctx context.Context, name string, orgID uuid.UUID) (R, error)
	negative   *NegativeCache
	ttl        time.Duration
	clock      clockwork.Clock
	orgs       *lru.Cache[NegativeKey, scoped[R]]

	init singleflight.Group

	mu     sync.RWMutex
	ready  bool
	system map[string]string
}

func newRegistry[R any](
	label string,
	loadSystem func(ctx context.Context) ([]entity.NamedID, error),
	find func(ctx context.Context, name string, orgID uuid.UUID) (R, error),
	cache RegistryCache,
) *registry[R] {
	cache.setDefaults()
	orgs, err := lru.New[NegativeKey, scoped[R]](cache.Size)
	if err != nil {
		// lru.New fails only for a non-positive size
		panic(err)
	}
	return &registry[R]{
		label:      label,
		loadSystem: loadSystem,
		find:       find,
		negative:   cache.Negative,
		ttl:        cache.TTL,
		clock:      cache.Clock,
		orgs:       orgs,
	}
}

// initialize loads the system map. Concurrent callers share a single load; a
// failed load leaves the registry uninitialized.
func (r *registry[R]) initialize(ctx context.Context) error {
	if r.isReady() {
		return nil
	}
	_, err, _ := r.init.Do("init", func() (any, error) {
		if r.isReady() {
			return nil, nil
		}
		records, err := r.loadSystem(ctx)
		if err != nil {
			return nil, err
		}
		system := make(map[string]string, len(records))
		for _, rec := range records {
			system[rec.Name] = rec.ID
		}
		r.mu.Lock()
		r.system = system
		r.ready = true
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

func (r *registry[R]) isReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

func (r *registry[R]) systemID(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.system[name]
	return id, ok
}

func (r *registry[R]) systemSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.system)
}

// orgRecord looks name up for orgID: per-organization cache, then the negative
// cache, then the store. Store misses are remembered in the negative cache.
func (r *registry[R]) orgRecord(ctx context.Context, name string, orgID uuid.UUID) (R, bool, error) {
	var zero R
	if orgID == uuid.Nil {
		return zero, false, nil
	}

	key := NegativeKey{Name: name, OrganizationID: orgID}
	if hit, ok := r.orgs.Get(key); ok {
		if r.clock.Now().Before(hit.expires) {
			recordCacheRequest(r.label, "hit")
			return hit.rec, true, nil
		}
		r.orgs.Remove(key)
	}

	if r.negative.WasRecentlyMissed(key) {
		recordCacheRequest(r.label, "negative")
		return zero, false, nil
	}

	rec, err := r.find(ctx, name, orgID)
	if errors.Is(err, entity.ErrNotFound) {
		recordCacheRequest(r.label, "miss")
		r.negative.Mark(key)
		return zero, false, nil
	}
	if err != nil {
		recordCacheRequest(r.label, "error")
		return zero, false, err
	}
	recordCacheRequest(r.label, "miss")

	r.orgs.Add(key, scoped[R]{rec: rec, expires: r.clock.Now().Add(r.ttl)})
	return rec, true, nil
}

// forget drops everything known about name in orgID, including a recent miss.
func (r *registry[R]) forget(orgID uuid.UUID, name string) {
	key := NegativeKey{Name: name, OrganizationID: orgID}
	r.orgs.Remove(key)
	r.negative.Forget(key)
}

func (r *registry[R]) invalidateOrg(orgID uuid.UUID, reason string) {
	for _, key := range r.orgs.Keys() {
		if key.OrganizationID == orgID {
			r.orgs.Remove(key)
		}
	}
	recordCacheInvalidate(reason)
}

func (r *registry[R]) flush() {
	r.orgs.Purge()
	recordCacheInvalidate("flush")
}
